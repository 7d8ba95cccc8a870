package protocol

import "sort"

// Handler applies a command value to state S.
// A zero reply record means the handler has nothing to send back.
// Returned errors should map onto a wire code via CodeOf; the handler
// must leave state untouched when it returns an error.
type Handler[S any] func(state *S, value uint32) (reply Record, err error)

// Command describes one entry of a command table
type Command[S any] struct {
	Letter  byte
	Name    string
	Handler Handler[S]
}

// Registry maps command letters to handlers
type Registry[S any] struct {
	commands map[byte]*Command[S]
}

// NewRegistry creates an empty command table
func NewRegistry[S any]() *Registry[S] {
	return &Registry[S]{
		commands: make(map[byte]*Command[S]),
	}
}

// Register adds or replaces the handler for letter
func (r *Registry[S]) Register(letter byte, name string, handler Handler[S]) {
	r.commands[letter] = &Command[S]{
		Letter:  letter,
		Name:    name,
		Handler: handler,
	}
}

// Lookup returns the table entry for letter
func (r *Registry[S]) Lookup(letter byte) (*Command[S], bool) {
	cmd, ok := r.commands[letter]
	return cmd, ok
}

// Accepts reports whether letter is legal in this table
func (r *Registry[S]) Accepts(letter byte) bool {
	_, ok := r.commands[letter]
	return ok
}

// Count returns the number of registered commands
func (r *Registry[S]) Count() int {
	return len(r.commands)
}

// Letters returns the registered command letters in order
func (r *Registry[S]) Letters() []byte {
	letters := make([]byte, 0, len(r.commands))
	for l := range r.commands {
		letters = append(letters, l)
	}
	sort.Slice(letters, func(i, j int) bool { return letters[i] < letters[j] })
	return letters
}

// Dispatch runs the handler for rec against state
func (r *Registry[S]) Dispatch(state *S, rec Record) (Record, error) {
	cmd, ok := r.commands[rec.Command]
	if !ok || cmd.Handler == nil {
		return Record{}, ErrUnknownCommand
	}
	return cmd.Handler(state, rec.Value)
}
