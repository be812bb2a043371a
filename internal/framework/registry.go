package framework

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps invocation tokens to commands.
//
// A token is a command name or alias. Commands of a group with a prefix are
// only reachable as "<prefix> <name>", e.g. "emoji cat". Tokens and canonical
// names are unique; a failed registration leaves the registry unchanged.
type Registry struct {
	mu       sync.RWMutex
	tokens   map[string]*Command
	byName   map[string]*Command
	invokes  map[*Command]string
	commands []*Command
	groups   []string
	maxWords int
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		tokens:   make(map[string]*Command),
		byName:   make(map[string]*Command),
		invokes:  make(map[*Command]string),
		maxWords: 1,
	}
}

// Register adds a single ungrouped command
func (r *Registry) Register(cmd *Command) error {
	return r.add(batch{cmds: []*Command{cmd}})
}

// RegisterGroup adds every command of g, or none of them
func (r *Registry) RegisterGroup(g Group) error {
	if g.Name == "" {
		return fmt.Errorf("%w: group without name", ErrInvalidCommand)
	}
	return r.add(batch{group: g.Name, prefix: g.Prefix, cmds: g.Commands})
}

// RegisterAll adds the ungrouped cmds and every group in one step.
// On error nothing is registered.
func (r *Registry) RegisterAll(cmds []*Command, groups ...Group) error {
	batches := []batch{{cmds: cmds}}
	for _, g := range groups {
		if g.Name == "" {
			return fmt.Errorf("%w: group without name", ErrInvalidCommand)
		}
		batches = append(batches, batch{group: g.Name, prefix: g.Prefix, cmds: g.Commands})
	}
	return r.add(batches...)
}

// batch is a set of commands sharing a group and prefix
type batch struct {
	group  string
	prefix string
	cmds   []*Command
}

func (r *Registry) add(batches ...batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make(map[string]*Command)
	names := make(map[string]struct{})
	groups := make(map[string]struct{})
	for _, b := range batches {
		if b.group != "" {
			for _, existing := range r.groups {
				if existing == b.group {
					return fmt.Errorf("%w: group %q", ErrDuplicateCommandName, b.group)
				}
			}
			if _, ok := groups[b.group]; ok {
				return fmt.Errorf("%w: group %q", ErrDuplicateCommandName, b.group)
			}
			groups[b.group] = struct{}{}
		}

		for _, cmd := range b.cmds {
			if cmd == nil || strings.TrimSpace(cmd.Name) == "" {
				return fmt.Errorf("%w: empty name", ErrInvalidCommand)
			}
			if cmd.Handler == nil {
				return fmt.Errorf("%w: %q has no handler", ErrInvalidCommand, cmd.Name)
			}
			if _, ok := r.byName[cmd.Name]; ok {
				return fmt.Errorf("%w: %q", ErrDuplicateCommandName, cmd.Name)
			}
			if _, ok := names[cmd.Name]; ok {
				return fmt.Errorf("%w: %q", ErrDuplicateCommandName, cmd.Name)
			}
			names[cmd.Name] = struct{}{}

			for _, name := range cmd.Names() {
				token := joinToken(b.prefix, name)
				if token == "" {
					return fmt.Errorf("%w: %q has an empty alias", ErrInvalidCommand, cmd.Name)
				}
				if _, ok := r.tokens[token]; ok {
					return fmt.Errorf("%w: %q", ErrDuplicateCommandName, token)
				}
				if _, ok := pending[token]; ok {
					return fmt.Errorf("%w: %q", ErrDuplicateCommandName, token)
				}
				pending[token] = cmd
			}
		}
	}

	for token, cmd := range pending {
		r.tokens[token] = cmd
		if n := len(strings.Fields(token)); n > r.maxWords {
			r.maxWords = n
		}
	}
	for _, b := range batches {
		for _, cmd := range b.cmds {
			cmd.Group = b.group
			r.byName[cmd.Name] = cmd
			r.invokes[cmd] = joinToken(b.prefix, cmd.Name)
			r.commands = append(r.commands, cmd)
		}
		if b.group != "" {
			r.groups = append(r.groups, b.group)
		}
	}
	return nil
}

// Resolve finds the command invoked by token. Matching is exact and case-sensitive.
func (r *Registry) Resolve(token string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.tokens[token]
	return cmd, ok
}

// Lookup finds a command by canonical name
func (r *Registry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byName[name]
	return cmd, ok
}

// Commands returns every command in registration order
func (r *Registry) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Command(nil), r.commands...)
}

// Groups returns the group names in registration order
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.groups...)
}

// Tokens returns every invocation token, sorted
func (r *Registry) Tokens() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tokens))
	for token := range r.tokens {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

// InvocationOf returns the token that invokes cmd by its canonical name
func (r *Registry) InvocationOf(cmd *Command) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if token, ok := r.invokes[cmd]; ok {
		return token
	}
	return cmd.Name
}

// MaxTokenWords is the word count of the longest token
func (r *Registry) MaxTokenWords() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxWords
}

func joinToken(prefix, name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if prefix == "" || name == "" {
		return name
	}
	return prefix + " " + name
}
