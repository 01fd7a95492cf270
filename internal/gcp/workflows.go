package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/Lllllllleong/searchablepdf/internal/models"
)

// WorkflowNotifier starts a Cloud Workflows execution for every published document.
type WorkflowNotifier struct {
	client *executions.Client
	parent string
}

// NewWorkflowNotifier returns a notifier for projects/<project>/locations/<location>/workflows/<workflow>.
func NewWorkflowNotifier(client *executions.Client, projectID, location, workflowID string) (*WorkflowNotifier, error) {
	if projectID == "" || location == "" || workflowID == "" {
		return nil, fmt.Errorf("NewWorkflowNotifier: projectID, location and workflowID cannot be empty")
	}
	return &WorkflowNotifier{
		client: client,
		parent: WorkflowParent(projectID, location, workflowID),
	}, nil
}

// WorkflowParent returns the resource name executions are created under.
func WorkflowParent(projectID, location, workflowID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID)
}

// Notify starts an execution with the notification as its argument and
// returns the execution name.
func (n *WorkflowNotifier) Notify(ctx context.Context, notification models.PublishedNotification) (string, error) {
	req, err := NewExecutionRequest(n.parent, notification)
	if err != nil {
		return "", err
	}
	exec, err := n.client.CreateExecution(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return exec.GetName(), nil
}

// NewExecutionRequest builds the CreateExecution request for a notification.
func NewExecutionRequest(parent string, notification models.PublishedNotification) (*executionspb.CreateExecutionRequest, error) {
	payloadBytes, err := json.Marshal(notification)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	return &executionspb.CreateExecutionRequest{
		Parent: parent,
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}, nil
}
