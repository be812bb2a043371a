package framework

// Handler runs a resolved command
type Handler interface {
	Execute(ctx *Context, args *Args) error
}

// HandlerFunc adapts a plain function to Handler
type HandlerFunc func(ctx *Context, args *Args) error

// Execute calls f(ctx, args)
func (f HandlerFunc) Execute(ctx *Context, args *Args) error {
	return f(ctx, args)
}

// Check is a custom gate; returning false rejects the invocation silently
type Check func(ctx *Context, args *Args) bool

// Command is one registered command. It must not be modified after registration.
type Command struct {
	Name        string
	Aliases     []string
	Group       string
	Description string
	Usage       string
	// RequiredPermissions is a bitset of Discord permission bits the author must hold
	RequiredPermissions int64
	// AllowedRoles, when non-empty, requires the author to hold one of these roles
	AllowedRoles []string
	Checks       []Check
	// Bucket names a rate-limit bucket added with Framework.AddBucket
	Bucket  string
	Handler Handler
}

// Names returns the canonical name followed by the aliases
func (c *Command) Names() []string {
	return append([]string{c.Name}, c.Aliases...)
}

// Group bundles commands under a shared invocation prefix
type Group struct {
	Name     string
	Prefix   string
	Commands []*Command
}
