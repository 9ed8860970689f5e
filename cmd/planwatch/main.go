// Package main provides a terminal client for watching a group's plan
// approval and casting votes against it. Votes render optimistically and
// roll back when the server refuses them, the same contract the web
// client follows.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gotrip-be/internal/domain"
	"gotrip-be/internal/realtime"
	"gotrip-be/internal/reconcile"
)

const usageText = `Commands:
  agree [comment]    approve the current plan
  changes [comment]  ask for changes to the plan
  unlock             clear all votes and reopen the plan (leader only)
  status             fetch and print the latest status
  quit               exit`

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "API server base URL")
	groupID := flag.String("group", "", "Group ID to watch")
	token := flag.String("token", "", "Bearer token for authentication")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	if *groupID == "" || *token == "" {
		fmt.Fprintln(os.Stderr, "Usage: planwatch -group <group-id> -token <token> [-server http://localhost:8080]")
		os.Exit(1)
	}

	logLevel := zapcore.WarnLevel
	if *verbose {
		logLevel = zapcore.DebugLevel
	}

	logConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(logLevel),
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := logConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	api := &apiClient{
		baseURL: strings.TrimRight(*serverURL, "/"),
		token:   *token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	profile, err := api.fetchProfile(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to authenticate: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Signed in as %s (%s)\n", profile.Name, profile.Sub)

	rec := reconcile.New(reconcile.DefaultTimeout, logger)

	status, err := api.fetchStatus(ctx, *groupID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to fetch approval status: %v\n", err)
		os.Exit(1)
	}
	rec.ApplySnapshot(status)
	render(status, profile.Sub)

	go watchStream(ctx, api, *groupID, rec, profile.Sub, logger)

	fmt.Println(usageText)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}

		command, comment := splitCommand(line)
		switch command {
		case "agree":
			castVote(ctx, api, *groupID, rec, profile, domain.VoteAgree, comment)
		case "changes":
			castVote(ctx, api, *groupID, rec, profile, domain.VoteRequestChanges, comment)
		case "unlock":
			unlock(ctx, api, *groupID, rec, profile.Sub)
		case "status":
			if status, err := api.fetchStatus(ctx, *groupID); err != nil {
				fmt.Printf("Failed to fetch status: %v\n", err)
			} else {
				rec.ApplySnapshot(status)
				render(status, profile.Sub)
			}
		case "quit", "exit":
			return
		default:
			fmt.Println(usageText)
		}
		fmt.Print("> ")
	}
}

func splitCommand(line string) (string, string) {
	parts := strings.SplitN(line, " ", 2)
	command := strings.ToLower(parts[0])
	if len(parts) == 2 {
		return command, strings.TrimSpace(parts[1])
	}
	return command, ""
}

// castVote renders the vote immediately and lets the reconciler walk it
// back if the server refuses. The server's response carries the
// authoritative status, so a successful vote settles without waiting for
// the stream.
func castVote(ctx context.Context, api *apiClient, groupID string, rec *reconcile.Reconciler, profile *domain.UserProfile, choice domain.VoteChoice, comment string) {
	provisional := reconcile.SpliceVote(rec.Current(), domain.PlanVote{
		GroupID:  groupID,
		UserID:   profile.Sub,
		UserName: profile.Name,
		Choice:   choice,
		Comment:  comment,
	})
	render(provisional, profile.Sub)

	var authoritative *domain.ApprovalStatus
	err := rec.Submit(ctx, provisional, func(ctx context.Context) error {
		response, err := api.postVote(ctx, groupID, choice, comment)
		if err != nil {
			return err
		}
		authoritative = &response.Status
		return nil
	})
	if err != nil {
		fmt.Printf("Vote rejected, rolling back: %v\n", err)
		render(rec.Current(), profile.Sub)
		return
	}
	rec.ApplySnapshot(authoritative)
	render(authoritative, profile.Sub)
}

func unlock(ctx context.Context, api *apiClient, groupID string, rec *reconcile.Reconciler, userID string) {
	current := rec.Current()
	var total int
	if current != nil {
		total = current.TotalMembers
	}
	provisional := domain.AggregateApproval(groupID, nil, total)

	var authoritative *domain.ApprovalStatus
	err := rec.Submit(ctx, &provisional, func(ctx context.Context) error {
		response, err := api.postUnlock(ctx, groupID)
		if err != nil {
			return err
		}
		authoritative = &response.Status
		return nil
	})
	if err != nil {
		fmt.Printf("Unlock failed, rolling back: %v\n", err)
		render(rec.Current(), userID)
		return
	}
	fmt.Println("Plan unlocked, all votes cleared")
	rec.ApplySnapshot(authoritative)
	render(authoritative, userID)
}

// watchStream keeps a WebSocket open against the approval stream and
// feeds every snapshot to the reconciler. Authoritative snapshots settle
// any vote still in flight.
func watchStream(ctx context.Context, api *apiClient, groupID string, rec *reconcile.Reconciler, userID string, logger *zap.Logger) {
	wsURL, err := api.streamURL(groupID)
	if err != nil {
		logger.Error("Invalid server URL", zap.Error(err))
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			logger.Warn("Stream connection failed, retrying", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}

		logger.Debug("Approval stream connected", zap.String("group_id", groupID))

		for {
			var event realtime.Event
			if err := conn.ReadJSON(&event); err != nil {
				logger.Warn("Stream closed, reconnecting", zap.Error(err))
				conn.Close()
				break
			}
			if event.Data == nil {
				continue
			}
			rec.ApplySnapshot(event.Data)
			render(event.Data, userID)
			fmt.Print("> ")
		}
	}
}

func render(status *domain.ApprovalStatus, selfID string) {
	if status == nil {
		return
	}

	fmt.Printf("\n[%s] %s  %d/%d agreed (%.0f%%)",
		time.Now().Format("15:04:05"),
		status.State,
		status.AgreedCount,
		status.TotalMembers,
		status.ApprovalPercentage,
	)
	if status.IsFixed {
		fmt.Print("  🔒 plan locked")
	}
	fmt.Println()

	for _, vote := range status.Votes {
		marker := "  "
		if vote.UserID == selfID {
			marker = "* "
		}
		name := vote.UserName
		if name == "" {
			name = vote.UserID
		}
		line := fmt.Sprintf("%s%-20s %s", marker, name, vote.Choice)
		if vote.Comment != "" {
			line += fmt.Sprintf("  %q", vote.Comment)
		}
		fmt.Println(line)
	}
}

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// streamURL converts the HTTP base URL into the WebSocket endpoint for
// the group. The token travels as a query parameter because browsers and
// websocket dialers cannot set an Authorization header on the upgrade.
func (c *apiClient) streamURL(groupID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse server URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	u.Path = fmt.Sprintf("/api/groups/%s/approval/stream", groupID)
	query := u.Query()
	query.Set("access_token", c.token)
	u.RawQuery = query.Encode()

	return u.String(), nil
}

func (c *apiClient) fetchProfile(ctx context.Context) (*domain.UserProfile, error) {
	var response struct {
		User *domain.UserProfile `json:"user"`
	}
	if err := c.get(ctx, "/api/auth/me", &response); err != nil {
		return nil, err
	}
	if response.User == nil {
		return nil, fmt.Errorf("server returned no profile")
	}
	return response.User, nil
}

func (c *apiClient) fetchStatus(ctx context.Context, groupID string) (*domain.ApprovalStatus, error) {
	var response domain.ApprovalStatusResponse
	path := fmt.Sprintf("/api/groups/%s/approval/status", groupID)
	if err := c.get(ctx, path, &response); err != nil {
		return nil, err
	}
	return &response.ApprovalStatus, nil
}

func (c *apiClient) postVote(ctx context.Context, groupID string, choice domain.VoteChoice, comment string) (*domain.VoteResponse, error) {
	var response domain.VoteResponse
	path := fmt.Sprintf("/api/groups/%s/approval/vote", groupID)
	if err := c.post(ctx, path, domain.VoteRequest{Vote: choice, Comment: comment}, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *apiClient) postUnlock(ctx context.Context, groupID string) (*domain.UnlockResponse, error) {
	var response domain.UnlockResponse
	path := fmt.Sprintf("/api/groups/%s/approval/unlock", groupID)
	if err := c.post(ctx, path, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *apiClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out)
}

func (c *apiClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeAPIError pulls the message out of the server's error envelope,
// falling back to the raw status when the body is not what we expect.
func decodeAPIError(resp *http.Response) error {
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error.Message != "" {
		return fmt.Errorf("%s", envelope.Error.Message)
	}
	return fmt.Errorf("server returned %s", resp.Status)
}
