package webhooks

// Standard event names emitted by the platform. Registrations may subscribe
// to any subset; custom event names are allowed alongside these.
const (
	EventRecordCreated     = "record.created"
	EventRecordUpdated     = "record.updated"
	EventRecordDeleted     = "record.deleted"
	EventWorkflowStarted   = "workflow.started"
	EventWorkflowCompleted = "workflow.completed"
	EventWorkflowFailed    = "workflow.failed"
	EventAgentResponse     = "agent.response"
	EventReviewRequired    = "review.required"
	EventReviewCompleted   = "review.completed"
)

// StandardEvents returns the platform event names in a stable order.
func StandardEvents() []string {
	return []string{
		EventRecordCreated,
		EventRecordUpdated,
		EventRecordDeleted,
		EventWorkflowStarted,
		EventWorkflowCompleted,
		EventWorkflowFailed,
		EventAgentResponse,
		EventReviewRequired,
		EventReviewCompleted,
	}
}
