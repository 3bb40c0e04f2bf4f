package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Start, inspect and watch orchestrated tasks",
}

var submitCmd = &cobra.Command{
	Use:   "submit [payload JSON]",
	Short: "Start a new task from a JSON payload",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		submitTask(args[0])
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show the current state of a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		showTask(args[0])
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [task-id]",
	Short: "Stream live status updates for a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		watchTask(args[0])
	},
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(submitCmd)
	taskCmd.AddCommand(statusCmd)
	taskCmd.AddCommand(watchCmd)
}

func submitTask(payloadJSON string) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		log.Fatalf("Payload is not valid JSON: %v", err)
	}

	body, _ := json.Marshal(payload)
	resp, err := http.Post(serverURL+"/api/v1/tasks", "application/json", bytes.NewBuffer(body))
	if err != nil {
		log.Fatalf("Error submitting task: %v", err)
	}
	defer resp.Body.Close()

	printJSONBody(resp.Body)
}

func showTask(taskID string) {
	resp, err := http.Get(serverURL + "/api/v1/tasks/" + taskID)
	if err != nil {
		log.Fatalf("Error fetching task: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		fmt.Println("Task not found.")
		os.Exit(1)
	}
	printJSONBody(resp.Body)
}

func watchTask(taskID string) {
	base, err := url.Parse(serverURL)
	if err != nil {
		log.Fatalf("Invalid server URL: %v", err)
	}
	scheme := "ws"
	if base.Scheme == "https" {
		scheme = "wss"
	}
	wsURL := url.URL{Scheme: scheme, Host: base.Host, Path: "/ws/tasks/" + taskID}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		log.Fatalf("Error connecting to %s: %v", wsURL.String(), err)
	}
	defer conn.Close()

	fmt.Printf("Watching task %s (Ctrl+C to stop)...\n", taskID)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			fmt.Println(string(message))
			if isTerminalEvent(message) {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
}

// isTerminalEvent reports whether a streamed event carries a final status.
func isTerminalEvent(message []byte) bool {
	var event struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(message, &event); err != nil {
		return false
	}
	return event.Status == "completed" || event.Status == "failed"
}

// printJSONBody pretty-prints a JSON response body.
func printJSONBody(body io.Reader) {
	data, err := io.ReadAll(body)
	if err != nil {
		log.Fatalf("Error reading response: %v", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(data), "", "  "); err != nil {
		fmt.Println(strings.TrimSpace(string(data)))
		return
	}
	fmt.Println(buf.String())
}
