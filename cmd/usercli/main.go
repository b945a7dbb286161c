// Package main provides the user CLI entry point for testing.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/tonaly/internal/app/assistant"
	"github.com/osa030/tonaly/internal/domain/chat"
	"github.com/osa030/tonaly/internal/domain/playlist"
)

var (
	app    = kingpin.New("tonaly-usercli", "Tonaly user client for testing")
	server = app.Flag("server", "Server address").Default("http://localhost:8000").String()

	// chat command
	chatCmd    = app.Command("chat", "Talk to the playlist assistant")
	chatPrompt = chatCmd.Arg("message", "First message").Required().Strings()
	chatOut    = chatCmd.Flag("out", "Write the proposed playlist to this file").Short('o').String()

	// create command
	createCmd   = app.Command("create", "Create a playlist from a proposal file")
	createFile  = createCmd.Arg("file", "Proposal JSON file").Required().ExistingFile()
	createToken = createCmd.Flag("token", "Spotify access token").Envar("TONALY_ACCESS_TOKEN").Required().String()
	createUser  = createCmd.Flag("user", "Spotify user ID").Envar("TONALY_USER_ID").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case chatCmd.FullCommand():
		err = runChat(ctx, strings.Join(*chatPrompt, " "), *chatOut)
	case createCmd.FullCommand():
		err = runCreate(ctx, *createFile, *createToken, *createUser)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// runChat holds a conversation until the assistant proposes a playlist or input ends.
func runChat(ctx context.Context, first, out string) error {
	history := []chat.Message{{Role: chat.RoleUser, Content: first}}
	input := bufio.NewScanner(os.Stdin)

	for {
		reply, err := streamReply(ctx, history)
		if err != nil {
			return err
		}
		history = append(history, chat.Message{Role: chat.RoleAssistant, Content: reply})

		if proposal, ok := assistant.ExtractProposal(reply); ok {
			fmt.Println()
			fmt.Println(proposal.Table())
			if out != "" {
				return saveProposal(out, proposal)
			}
			return nil
		}

		fmt.Print("\n> ")
		if !input.Scan() {
			return input.Err()
		}
		line := strings.TrimSpace(input.Text())
		if line == "" {
			return nil
		}
		history = append(history, chat.Message{Role: chat.RoleUser, Content: line})
	}
}

// streamReply prints the assistant's reply as it arrives and returns the full text.
func streamReply(ctx context.Context, history []chat.Message) (string, error) {
	body, err := json.Marshal(map[string]any{"messages": history})
	if err != nil {
		return "", err
	}

	resp, err := postJSON(ctx, "/api/chat", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readError(resp)
	}

	var sb strings.Builder
	for delta, err := range assistant.ReadDataStream(resp.Body) {
		if err != nil {
			return sb.String(), err
		}
		fmt.Print(delta)
		sb.WriteString(delta)
	}
	fmt.Println()

	return sb.String(), nil
}

func saveProposal(path string, p playlist.Proposal) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	fmt.Printf("Proposal saved to %s\n", path)
	return nil
}

func runCreate(ctx context.Context, path, token, userID string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var proposal playlist.Proposal
	if err := json.Unmarshal(data, &proposal); err != nil {
		return fmt.Errorf("invalid proposal file: %w", err)
	}
	fmt.Println(proposal.Table())

	body, err := json.Marshal(map[string]any{
		"playlistData": proposal,
		"accessToken":  token,
		"userId":       userID,
	})
	if err != nil {
		return err
	}

	resp, err := postJSON(ctx, "/api/playlists", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}

	var result struct {
		Playlist struct {
			ID             string `json:"id"`
			Name           string `json:"name"`
			URL            string `json:"url"`
			TracksAdded    int    `json:"tracksAdded"`
			TracksNotFound int    `json:"tracksNotFound"`
		} `json:"playlist"`
		NotFoundTracks []struct {
			Title  string `json:"title"`
			Artist string `json:"artist"`
		} `json:"notFoundTracks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}

	fmt.Printf("Created %q: %s\n", result.Playlist.Name, result.Playlist.URL)
	fmt.Printf("Added %d tracks, %d not found\n", result.Playlist.TracksAdded, result.Playlist.TracksNotFound)
	for _, t := range result.NotFoundTracks {
		fmt.Printf("  - %s / %s\n", t.Title, t.Artist)
	}
	return nil
}

func postJSON(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(*server, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return http.DefaultClient.Do(req)
}

func readError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(b)))
}
