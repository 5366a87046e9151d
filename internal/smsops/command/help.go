package command

// HelpMessage is the reply sent for a help request.
const HelpMessage = `SMS Commands:

• open [type] [name] - Open a lift/trail/gate
• close [type] [name] - Close a lift/trail/gate
• groom trail [name] - Mark a trail groomed
• status - Get current status
• undo - Reverse last command
• help - Show this message

Examples:
• open lift grandview
• close broadway
• open gate 5`
