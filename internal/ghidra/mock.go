package ghidra

import (
	"fmt"
	"strings"
	"sync"
)

// mockProgram is a small canned binary served in mock mode. Renames and
// comments mutate it in memory, so a rename followed by a listing shows
// the new name, which is what exercises the loop end to end without a
// live Ghidra session.
type mockProgram struct {
	mu        sync.Mutex
	functions []*mockFunction
	imports   []string
	exports   []string
	current   int
}

type mockFunction struct {
	name    string
	address string
	code    string
	asm     []string
}

func newMockProgram() *mockProgram {
	return &mockProgram{
		functions: []*mockFunction{
			newMockFunction("main", "00401000"),
			newMockFunction("initialize", "00401100"),
			newMockFunction("process_data", "00401200"),
			newMockFunction("cleanup", "00401300"),
		},
		imports: []string{
			"printf (msvcrt.dll)",
			"malloc (msvcrt.dll)",
			"free (msvcrt.dll)",
		},
		exports: []string{
			"DllMain (0x00402000)",
			"ProcessData (0x00402100)",
		},
	}
}

func newMockFunction(name, address string) *mockFunction {
	code := fmt.Sprintf(`void %s(void)
{
  int local_8;

  local_8 = 0;
  printf("entered %s");
  return;
}`, name, name)

	asm := []string{
		fmt.Sprintf("0x%s:      PUSH RBP", address),
		fmt.Sprintf("0x%s+0x1:  MOV RBP,RSP", address),
		fmt.Sprintf("0x%s+0x4:  SUB RSP,0x20", address),
		fmt.Sprintf("0x%s+0x8:  CALL printf", address),
		fmt.Sprintf("0x%s+0xd:  ADD RSP,0x20", address),
		fmt.Sprintf("0x%s+0x11: POP RBP", address),
		fmt.Sprintf("0x%s+0x12: RET", address),
	}

	return &mockFunction{name: name, address: address, code: code, asm: asm}
}

func (m *mockProgram) listFunctions(offset, limit int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.functions))
	for _, fn := range m.functions {
		names = append(names, fn.name)
	}
	return page(names, offset, limit)
}

func (m *mockProgram) decompile(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn := m.byName(name)
	if fn == nil {
		return "", fmt.Errorf("function %q not found", name)
	}
	return fn.code, nil
}

func (m *mockProgram) decompileAddress(address string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn := m.byAddress(address)
	if fn == nil {
		return "", fmt.Errorf("no function at address %s", address)
	}
	return fn.code, nil
}

func (m *mockProgram) disassemble(address string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn := m.byAddress(address)
	if fn == nil {
		return nil, fmt.Errorf("no function at address %s", address)
	}
	return append([]string(nil), fn.asm...), nil
}

func (m *mockProgram) renameFunction(oldName, newName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn := m.byName(oldName)
	if fn == nil {
		return "", fmt.Errorf("function %q not found", oldName)
	}
	fn.rename(newName)
	return fmt.Sprintf("Renamed function from %s to %s", oldName, newName), nil
}

func (m *mockProgram) renameFunctionByAddress(address, newName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn := m.byAddress(address)
	if fn == nil {
		return "", fmt.Errorf("no function at address %s", address)
	}
	oldName := fn.name
	fn.rename(newName)
	return fmt.Sprintf("Renamed function from %s to %s", oldName, newName), nil
}

func (m *mockProgram) functionByAddress(address string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn := m.byAddress(address)
	if fn == nil {
		return "", fmt.Errorf("no function at address %s", address)
	}
	return fmt.Sprintf("%s at 0x%s", fn.name, fn.address), nil
}

func (m *mockProgram) currentAddress() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return "0x" + m.functions[m.current].address
}

func (m *mockProgram) currentFunction() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn := m.functions[m.current]
	return fmt.Sprintf("%s at 0x%s", fn.name, fn.address)
}

func (m *mockProgram) listImports(offset, limit int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return page(m.imports, offset, limit)
}

func (m *mockProgram) listExports(offset, limit int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return page(m.exports, offset, limit)
}

func (m *mockProgram) searchFunctions(query string, offset, limit int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []string
	lower := strings.ToLower(query)
	for _, fn := range m.functions {
		if strings.Contains(strings.ToLower(fn.name), lower) {
			matches = append(matches, fmt.Sprintf("%s @ 0x%s", fn.name, fn.address))
		}
	}
	return page(matches, offset, limit)
}

func (m *mockProgram) setComment(view, address, comment string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.byAddress(address) == nil {
		return "", fmt.Errorf("no function at address %s", address)
	}
	return fmt.Sprintf("Set %s comment at %s", view, address), nil
}

// byName and byAddress assume the caller holds mu.

func (m *mockProgram) byName(name string) *mockFunction {
	for _, fn := range m.functions {
		if fn.name == name {
			return fn
		}
	}
	return nil
}

func (m *mockProgram) byAddress(address string) *mockFunction {
	trimmed := strings.TrimPrefix(strings.ToLower(address), "0x")
	for _, fn := range m.functions {
		if strings.EqualFold(fn.address, trimmed) {
			return fn
		}
	}
	return nil
}

func (fn *mockFunction) rename(newName string) {
	fn.code = strings.ReplaceAll(fn.code, fn.name, newName)
	fn.name = newName
}

func page(items []string, offset, limit int) []string {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return append([]string(nil), items[offset:end]...)
}
