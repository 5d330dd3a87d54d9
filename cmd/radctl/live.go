package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	httpmiddleware "github.com/wolfman30/radiology-ops/internal/http/middleware"
	"github.com/wolfman30/radiology-ops/internal/live"
	"github.com/wolfman30/radiology-ops/internal/staff"
)

func liveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Live queue tools",
	}
	tail := &cobra.Command{
		Use:   "tail <ws://host/live/appointments?status=pending>",
		Short: "Print every snapshot and toast pushed to the live queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				secret, _ := cmd.Flags().GetString("secret")
				if secret == "" {
					secret = os.Getenv("STAFF_JWT_SECRET")
				}
				if secret == "" {
					return errors.New("either --token or --secret (or STAFF_JWT_SECRET) is required")
				}
				var err error
				token, err = httpmiddleware.SignStaffToken(secret, staff.Caller{ID: "radctl", Name: "radctl", Role: staff.RoleStaff}, time.Now().Add(12*time.Hour))
				if err != nil {
					return fmt.Errorf("sign token: %w", err)
				}
			}
			origin, _ := cmd.Flags().GetString("origin")
			once, _ := cmd.Flags().GetBool("once")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return tailLive(ctx, cmd.OutOrStdout(), args[0], token, origin, once)
		},
	}
	tail.Flags().String("token", "", "Staff bearer token")
	tail.Flags().String("secret", "", "Sign a short-lived staff token with this secret")
	tail.Flags().String("origin", "", "Origin header to present (for servers with an origin allowlist)")
	tail.Flags().Bool("once", false, "Exit after the first snapshot")
	cmd.AddCommand(tail)
	return cmd
}

func tailLive(ctx context.Context, w io.Writer, rawURL, token, origin string, once bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	if origin == "" {
		scheme := "http"
		if u.Scheme == "wss" {
			scheme = "https"
		}
		origin = scheme + "://" + u.Host
	}
	header.Set("Origin", origin)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %s", u.Redacted(), resp.Status)
		}
		return fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		var msg live.OutboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		switch msg.Type {
		case "snapshot":
			if msg.Snapshot == nil {
				continue
			}
			printSnapshot(w, *msg.Snapshot)
			if once {
				return nil
			}
		case "error":
			return fmt.Errorf("server: %s", msg.Error)
		}
	}
}

func printSnapshot(w io.Writer, snap live.Snapshot) {
	fmt.Fprintf(w, "[%s] %d appointments\n", snap.At.Format(time.TimeOnly), snap.Count)
	for _, t := range snap.Toasts {
		fmt.Fprintf(w, "  %s: %s\n", t.Level, t.Message)
	}
	for _, a := range snap.Appointments {
		line, _ := json.Marshal(map[string]any{"id": a.ID, "time": a.Time, "exam": a.ExamType, "patient": a.PatientName, "status": a.Status})
		fmt.Fprintf(w, "  %s\n", line)
	}
}
