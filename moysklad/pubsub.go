package moysklad

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"

	"bitbucket.org/almasoft/crm_backend/config"
)

// PubSubPushEnvelope is Google's push delivery wrapper. Message.Data
// arrives base64-encoded, which json handles for []byte.
type PubSubPushEnvelope struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func PublishSyncJob(ctx context.Context, jobId string, options SyncOptions) error {
	topicName := strings.TrimSpace(os.Getenv("MOYSKLAD_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "moysklad-sync"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if config.EnvBoolDefault("MOYSKLAD_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	payload := SyncPubSubPayload{JobId: jobId, Options: options}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler runs the sync worker synchronously for each push
// delivery. Bad envelopes are acked (204) so they don't loop forever;
// worker idempotency covers redelivery of good ones.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.EnvBoolDefault("ENABLE_MOYSKLAD_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if strings.TrimSpace(payload.JobId) == "" {
			c.Status(204)
			return
		}

		_ = ProcessSyncJob(c.Request.Context(), payload)
		c.Status(204)
	}
}
