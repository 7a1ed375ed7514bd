package bot

// Command constants for Telegram bot commands.
const (
	CommandStart   = "/start"
	CommandHelp    = "/help"
	CommandLogin   = "/login"
	CommandLogout  = "/logout"
	CommandWhoami  = "/whoami"
	CommandStatus  = "/status"
	CommandRefresh = "/refresh"
	CommandCancel  = "/cancel"
)
