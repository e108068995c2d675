package usecase

import "chat-widget/internal/domain"

const welcomeText = "Hello! I'm your chat assistant. Here are some things I can help you with:"

// Notices appended as system messages when the agent call itself fails.
const (
	noticeMessageFailed = "Error: Could not get a response from the agent."
	noticeActionFailed  = "Error: Could not process the action."
)

var initialActions = []domain.ActionItem{
	{ID: "action1", Label: "Check Order Status", ActionCode: "check_order_status"},
	{ID: "action2", Label: "Talk to Support", ActionCode: "talk_to_support"},
	{ID: "action3", Label: "View FAQs", ActionCode: "view_faqs"},
	{ID: "action4", Label: "Update Profile", ActionCode: "update_profile"},
	{ID: "action5", Label: "Track Shipment", ActionCode: "track_shipment"},
}

// InitialActions returns the quick actions offered with the welcome message.
func InitialActions() []domain.ActionItem {
	return domain.CloneActions(initialActions)
}

func welcomeMessage(id string, timestamp int64) domain.Message {
	return domain.Message{
		ID:        id,
		Text:      welcomeText,
		Sender:    domain.SenderSystem,
		Timestamp: timestamp,
		Actions:   InitialActions(),
	}
}
