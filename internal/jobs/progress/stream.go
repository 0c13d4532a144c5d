// Package progress pushes a case's job-progress counts (spec.md §4.10:
// "expose counts by kind x state") over a WebSocket instead of requiring
// the operator UI to poll, an additive extension of spec.md's progress
// exposure (SPEC_FULL.md §4). Grounded on rpc/ws.go's
// websocket.Accept/ctx-timeout-write shape, replacing its node-subscription
// channel with a fixed-interval poll of the same ProgressForCase query the
// polling HTTP endpoint uses.
package progress

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"nhooyr.io/websocket"

	"casepilot/internal/jobs"
)

const (
	writeTimeout  = 10 * time.Second
	pollInterval  = 2 * time.Second
)

// Stream polls ProgressForCase(caseID) every pollInterval and pushes each
// snapshot that differs from the last one sent over conn as JSON until the
// request context is cancelled or the connection errors. It never mutates state; concurrent streams for the
// same case are safe.
func Stream(ctx context.Context, db *gorm.DB, caseID uuid.UUID, conn *websocket.Conn) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastPayload string
	for {
		p, err := jobs.ProgressForCase(db, caseID)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if string(encoded) != lastPayload {
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, encoded)
			cancel()
			if err != nil {
				return err
			}
			lastPayload = string(encoded)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
