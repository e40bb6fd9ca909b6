package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/example/calendar-service/internal/application"
	"github.com/example/calendar-service/internal/client"
	"github.com/example/calendar-service/internal/ics"
	"github.com/example/calendar-service/internal/persistence/adapter"
	"github.com/example/calendar-service/internal/recurrence"
)

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "bulk-create events from an .ics or JSON file",
		ArgsUsage: "<file>",
		Description: "With --user the events are written straight to the configured storage. " +
			"With --server they are uploaded through the API using --token.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "owner user id for a direct import"},
			&cli.StringFlag{Name: "server", Usage: "API base URL", EnvVars: []string{"CALENDAR_API_URL"}},
			&cli.StringFlag{Name: "token", Usage: "session token for --server", EnvVars: []string{"CALENDAR_TOKEN"}},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return errors.New("import requires a file")
			}
			entries, err := readEntries(path)
			if err != nil {
				return err
			}

			switch {
			case c.String("server") != "":
				api, err := client.NewAPI(c.String("server"), c.String("token"), nil)
				if err != nil {
					return err
				}
				events, err := api.UploadEvents(c.Context, entries)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Imported %d of %d events\n", len(events), len(entries))
				return nil
			case c.String("user") != "":
				result, err := importDirect(c, c.String("user"), entries)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Imported %d of %d events (%d skipped)\n", result.Count, len(entries), result.Skipped)
				return nil
			default:
				return errors.New("import requires --user or --server")
			}
		},
	}
}

func importDirect(c *cli.Context, userID string, entries []application.EventInput) (application.UploadResult, error) {
	cfg, logger, err := loadRuntime(c.App.ErrWriter)
	if err != nil {
		return application.UploadResult{}, err
	}
	storage, err := openStorage(c.Context, cfg, logger)
	if err != nil {
		return application.UploadResult{}, err
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	repo := adapter.New(storage)
	activity := application.NewActivityLogger(repo, uuid.NewString, time.Now, logger)
	defer activity.Wait()
	events := application.NewEventServiceWithLogger(repo, activity, recurrence.NewEngine(cfg.RecurrenceHorizonDays, 0), uuid.NewString, time.Now, logger)
	return uploadAs(c.Context, repo, events, userID, entries)
}

type eventUploader interface {
	UploadEvents(ctx context.Context, params application.UploadEventsParams) (application.UploadResult, error)
}

// uploadAs stores entries on behalf of an existing, active user.
func uploadAs(ctx context.Context, users application.UserRepository, events eventUploader, userID string, entries []application.EventInput) (application.UploadResult, error) {
	user, err := users.GetUser(ctx, userID)
	if err != nil {
		return application.UploadResult{}, fmt.Errorf("user %s: %w", userID, err)
	}
	if !user.Active {
		return application.UploadResult{}, fmt.Errorf("user %s is deactivated", userID)
	}
	return events.UploadEvents(ctx, application.UploadEventsParams{
		Principal: application.Principal{UserID: user.ID, Email: user.Email, IsAdmin: user.IsAdmin()},
		Entries:   entries,
	})
}

// readEntries decodes an iCalendar file or JSON holding either an array of
// events or an {"events": [...]} object.
func readEntries(path string) ([]application.EventInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeEntries(f, strings.ToLower(filepath.Ext(path)))
}

func decodeEntries(r io.Reader, ext string) ([]application.EventInput, error) {
	if ext == ".ics" || ext == ".ical" {
		return ics.Decode(r)
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)

	var entries []application.EventInput
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
		return entries, nil
	}

	var wrapped struct {
		Events []application.EventInput `json:"events"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return wrapped.Events, nil
}
