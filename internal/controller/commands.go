package controller

// Command is a user action consumed by Controller.Dispatch.
type Command interface {
	Name() string
}

// Login starts the redirect-based login.
type Login struct{}

// Load sets the document URL and loads it.
type Load struct {
	URL string
}

// Add appends a task.
type Add struct {
	Description string
}

// Toggle flips a task's done flag.
type Toggle struct {
	ID string
}

// Delete removes a task.
type Delete struct {
	ID string
}

func (Login) Name() string  { return "login" }
func (Load) Name() string   { return "load" }
func (Add) Name() string    { return "add" }
func (Toggle) Name() string { return "toggle" }
func (Delete) Name() string { return "delete" }
