package view

// User-facing error messages.
const (
	MsgMissingAPIKey = "Please enter your API_KEY first"
	MsgNoLocation    = "Could not get location"
	MsgQuotaExceeded = "⚠️ Maximum daily cost exceeded. Please create a Visual Crossing account and generate your own API Key."
	MsgGeneric       = "Error"
)
