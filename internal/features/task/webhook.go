package task

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"docsync/internal/common/errs"
	"docsync/internal/features/remote"
	"docsync/internal/logger"

	"go.uber.org/zap"
)

// webhookLine is one NDJSON line of a Meilisearch task webhook.
type webhookLine struct {
	UID    int64  `json:"uid"`
	Status string `json:"status"`
	Error  *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// WebhookResult summarizes one webhook delivery.
type WebhookResult struct {
	Applied int   `json:"applied"`
	Ignored int   `json:"ignored"`
	Unknown int64 `json:"unknown_uid,omitempty"`
}

// HandleWebhook applies every line of a gzip-compressed or plain NDJSON
// payload in order. It stops with a NotFound error at the first uid that
// matches no task.
func (t *Tracker) HandleWebhook(ctx context.Context, payload []byte) (WebhookResult, error) {
	var res WebhookResult

	body, err := decompress(payload)
	if err != nil {
		return res, errs.Wrap(errs.Invalid, err, "unreadable webhook payload")
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var ev webhookLine
		if err := json.Unmarshal(line, &ev); err != nil {
			return res, errs.Wrap(errs.Invalid, err, "malformed webhook line")
		}

		status := remote.Status(ev.Status)
		if status != remote.StatusSucceeded && status != remote.StatusFailed && status != remote.StatusProcessing {
			res.Ignored++
			continue
		}
		detail := ""
		if ev.Error != nil {
			detail = ev.Error.Message
		}

		_, err := t.ApplyExternalStatus(ctx, remote.KindMeilisearch, ev.UID, status, detail)
		if errs.Is(err, errs.NotFound) {
			t.Logger.Warn("Webhook references unknown task", logger.TaskUID(ev.UID))
			res.Unknown = ev.UID
			return res, err
		}
		if err != nil {
			return res, fmt.Errorf("apply task %d: %w", ev.UID, err)
		}
		res.Applied++
	}
	if err := scanner.Err(); err != nil {
		return res, errs.Wrap(errs.Invalid, err, "read webhook payload")
	}

	t.Logger.Debug("Webhook processed", zap.Int("applied", res.Applied), zap.Int("ignored", res.Ignored))
	return res, nil
}

func decompress(payload []byte) (io.Reader, error) {
	if len(payload) >= 2 && payload[0] == 0x1f && payload[1] == 0x8b {
		return gzip.NewReader(bytes.NewReader(payload))
	}
	return bytes.NewReader(payload), nil
}
