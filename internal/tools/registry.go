package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// DefaultMaxResultChars is the threshold above which a string result is
// paginated.
const DefaultMaxResultChars = 50_000

// Options configures a Registry.
type Options struct {
	MaxResultChars int
}

// DefaultOptions returns Options with MaxResultChars at its spec default.
func DefaultOptions() Options {
	return Options{MaxResultChars: DefaultMaxResultChars}
}

// Registry holds registered tools, their pagination scratch store, and the
// auto-registered read_more tool. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition
	opts  Options

	pageMu sync.Mutex
	pages  map[string]string // result_id -> full text
}

// New constructs an empty Registry and registers its read_more tool.
func New(opts Options) *Registry {
	if opts.MaxResultChars <= 0 {
		opts.MaxResultChars = DefaultMaxResultChars
	}
	r := &Registry{
		tools: make(map[string]Definition),
		opts:  opts,
		pages: make(map[string]string),
	}
	r.registerReadMore()
	return r
}

// Register adds a tool, compiling its InputSchema (if any) so a malformed
// schema is rejected here. A second registration of the same name fails
// with *DuplicateToolError.
func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return &DuplicateToolError{Name: def.Name}
	}
	if len(def.InputSchema) > 0 {
		if _, err := compileSchema(def.Name, def.InputSchema); err != nil {
			return fmt.Errorf("register %s: %w", def.Name, err)
		}
	}
	if def.Source == "" {
		def.Source = SourceNative
	}
	r.tools[def.Name] = def
	return nil
}

// Unregister removes a tool by name, a no-op if it isn't registered.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool's definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Definitions returns every registered tool, for building the Provider's
// tool list. Order is not guaranteed.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.tools))
	for _, def := range r.tools {
		out = append(out, def)
	}
	return out
}

// Call is one requested tool invocation, identified by its tool_use id.
type Call struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// CallResult is the outcome of one Call, always populated even when the
// tool was not found or failed — execution never returns a hard error for
// a handler failure.
type CallResult struct {
	ID      string
	Content string
	IsError bool
	Blocks  []byte
}

// Execute runs a single tool call, validating its input against the
// declared schema and wrapping handler panics-as-errors into an error
// result rather than propagating.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (res Result, err error) {
	def, ok := r.Get(name)
	if !ok {
		return ErrorResult(fmt.Sprintf("tool not found: %s", name)), nil
	}

	if verr := validateInput(name, def.InputSchema, input); verr != nil {
		return ErrorResult(fmt.Sprintf("invalid input: %v", verr)), nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			res = ErrorResult(fmt.Sprintf("tool panicked: %v", rec))
			err = nil
		}
	}()

	result, herr := def.Handler(ctx, input)
	if herr != nil {
		return ErrorResult(herr.Error()), nil
	}
	// read_more already returns a single page with its footer, so its
	// output is not paginated a second time.
	if !result.IsError && !result.IsBlockStructured() && name != "read_more" {
		result.Content = r.maybePaginate(result.Text())
	}
	return result, nil
}

// ExecuteMany runs every call concurrently and returns results in the same
// order as calls, regardless of completion order.
func (r *Registry) ExecuteMany(ctx context.Context, calls []Call) []CallResult {
	out := make([]CallResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call Call) {
			defer wg.Done()
			result, _ := r.Execute(ctx, call.Name, call.Input)
			out[i] = CallResult{
				ID:      call.ID,
				Content: result.Text(),
				IsError: result.IsError,
				Blocks:  result.Blocks,
			}
		}(i, call)
	}
	wg.Wait()
	return out
}

// maybePaginate stores text that exceeds MaxResultChars in the scratch
// table and returns page 1 with the literal footer, passing short text
// through unchanged.
func (r *Registry) maybePaginate(text string) json.RawMessage {
	if len(text) <= r.opts.MaxResultChars {
		b, _ := json.Marshal(text)
		return b
	}

	resultID := uuid.NewString()
	r.pageMu.Lock()
	r.pages[resultID] = text
	r.pageMu.Unlock()

	page := paginateText(text, r.opts.MaxResultChars, 1, resultID)
	b, _ := json.Marshal(page)
	return b
}

func paginateText(text string, pageSize, page int, resultID string) string {
	total := totalPages(len(text), pageSize)
	if page < 1 {
		page = 1
	}
	if page > total {
		page = total
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if end > len(text) {
		end = len(text)
	}
	return text[start:end] + pageFooter(page, total, resultID)
}

// pageFooter renders the literal footer format spec.md §4.3 requires. The
// "page=K" fragment is a literal instruction to the caller, not a
// substituted value — only the current page, total pages, and result_id
// are filled in.
func pageFooter(page, total int, resultID string) string {
	return fmt.Sprintf("\n\n[Page %d/%d] — call read_more(result_id=%s, page=K) for more", page, total, resultID)
}

func totalPages(length, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	n := (length + pageSize - 1) / pageSize
	if n < 1 {
		n = 1
	}
	return n
}

// ClearPaginationStore removes every scratch entry, as spec'd for registry
// teardown; entries otherwise live for the registry's lifetime.
func (r *Registry) ClearPaginationStore() {
	r.pageMu.Lock()
	defer r.pageMu.Unlock()
	r.pages = make(map[string]string)
}
