package presenter

import "context"

// Presenter shows a notification to the user.
// This decouples the poller from whichever platform actually renders it.
type Presenter interface {
	Show(ctx context.Context, title, body string, id int32) error
	// ShowWithData attaches a payload that stays resolvable when the notification is tapped.
	ShowWithData(ctx context.Context, title, body string, id int32, data map[string]string) error
}
