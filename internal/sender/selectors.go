package sender

// These selectors target the chat web UI this sender drives. They live in
// one file so a different deployment can retarget the sender at another
// chat service by editing only this file.
const (
	readySelector         = "div[role='grid']"
	contactSelector       = "span[title]"
	messageBoxSelector    = "div[contenteditable='true'][data-tab]"
	sentIndicatorSelector = "span[data-icon]"
	sentIndicatorText     = "msg-check"
)
