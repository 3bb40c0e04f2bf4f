package cmd

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Post events to waiting tasks",
}

var postCmd = &cobra.Command{
	Use:   "post [task-id] [event-type] [event-data JSON]",
	Short: "Post an asynchronous completion event to a task",
	Args:  cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		dataJSON := "{}"
		if len(args) == 3 {
			dataJSON = args[2]
		}
		postEvent(args[0], args[1], dataJSON)
	},
}

func init() {
	rootCmd.AddCommand(eventCmd)
	eventCmd.AddCommand(postCmd)
}

func postEvent(taskID, eventType, dataJSON string) {
	var eventData map[string]interface{}
	if err := json.Unmarshal([]byte(dataJSON), &eventData); err != nil {
		log.Fatalf("Event data is not valid JSON: %v", err)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"event_type": eventType,
		"event_data": eventData,
	})

	resp, err := http.Post(serverURL+"/api/v1/tasks/"+taskID+"/events", "application/json", bytes.NewBuffer(body))
	if err != nil {
		log.Fatalf("Error posting event: %v", err)
	}
	defer resp.Body.Close()

	printJSONBody(resp.Body)
}
