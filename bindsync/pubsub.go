package bindsync

import (
	"context"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/bindsync_backend/config"
	"bitbucket.org/mmdatafocus/bindsync_backend/models"
	"bitbucket.org/mmdatafocus/bindsync_backend/utils"
)

func syncTopicName() string {
	topicName := strings.TrimSpace(os.Getenv("BIND_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "bind-sync"
	}
	return topicName
}

// PublishSyncJob dispatches an async push cycle through Pub/Sub. An empty
// account id means every configured account.
func PublishSyncJob(ctx context.Context, accountId string, triggeredBy string) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topicName := syncTopicName()
	topic := client.Topic(topicName)
	if envBoolDefault("BIND_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	payload := SyncJobPayload{
		AccountId:   accountId,
		TriggeredBy: triggeredBy,
	}
	data, err := utils.MarshalToJSON(payload)
	if err != nil {
		return err
	}
	res := topic.Publish(ctx, &pubsub.Message{Data: []byte(data)})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler consumes the push subscription. Always acks (204): a sync
// job that fails is recorded in run history, not redelivered forever.
func PubSubPushHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_BIND_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := utils.UnmarshalFromJSON(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncJobPayload
		if err := utils.UnmarshalFromJSON(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}

		svc.ProcessPushJob(c.Request.Context(), payload)
		c.Status(204)
	}
}

// ProcessPushJob runs the full push cycle for the payload's account selection.
func (s *Service) ProcessPushJob(ctx context.Context, payload SyncJobPayload) {
	triggeredBy := payload.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = models.SyncTriggeredPush
	}
	accounts, err := s.LoadAccounts(ctx, payload.AccountId)
	if err != nil {
		config.LogError(s.logger, "bindsync", "ProcessPushJob", "load accounts", payload, err)
		return
	}
	s.SyncAccounts(ctx, accounts, true, triggeredBy)
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
