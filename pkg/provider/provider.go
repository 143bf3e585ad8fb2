package provider

type File struct {
	Name string

	Content     []byte
	ContentType string
}

type Tool struct {
	Name        string
	Description string

	Strict *bool

	Parameters map[string]any
}

type ToolResult struct {
	ID string

	Data string
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}
