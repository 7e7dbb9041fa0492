package agent

import (
	"fmt"
	"strings"

	"godra/internal/tools"
)

// Catalogue names the analyzer and controller special-case.
const (
	toolListFunctions      = "list-functions"
	toolSearchFunctions    = "search-functions"
	toolListImports        = "list-imports"
	toolListExports        = "list-exports"
	toolDecompile          = "decompile-by-name"
	toolDecompileByAddress = "decompile-by-address"
	toolDisassemble        = "disassemble-function"
	toolRename             = "rename-by-name"
	toolRenameByAddress    = "rename-by-address"
)

// Fixed lead-ins the analyzer puts in front of raw tool output. These
// are contract text: downstream checks match on them, so they do not
// change with phrasing.
const (
	leadInFunctions  = "The following functions were found:"
	leadInImports    = "The following imports were found:"
	leadInExports    = "The following exports were found:"
	leadInDecompiled = "Decompiled function"
)

// Analyzer folds each execution result into the running analysis. It is
// a pure function of its inputs: findings quote the result verbatim and
// nothing is speculated beyond it. No completion call is involved.
type Analyzer struct{}

// Analyze returns the analysis extended with a finding for the latest
// result. A nil result leaves the analysis unchanged.
func (Analyzer) Analyze(query string, last *ExecutionResult, current string) string {
	if last == nil {
		return current
	}
	finding := renderFinding(last)
	if finding == "" {
		return current
	}
	if current == "" {
		return finding
	}
	return current + "\n\n" + finding
}

// renderFinding turns one execution result into analysis text. Listing
// and decompilation output is quoted verbatim under its lead-in so the
// finding stands on its own.
func renderFinding(r *ExecutionResult) string {
	switch r.Status {
	case StatusNoPlan:
		return "No tool was executed: " + r.Message + "."
	case StatusError:
		if r.Tool != "" {
			return fmt.Sprintf("Tool %s failed: %s", r.Tool, r.Message)
		}
		return r.Message
	}

	switch r.Tool {
	case toolListFunctions:
		return listingFinding(leadInFunctions, r.Payload)
	case toolSearchFunctions:
		if strings.HasPrefix(r.Payload, "No functions") {
			return r.Payload
		}
		return listingFinding(leadInFunctions, r.Payload)
	case toolListImports:
		return listingFinding(leadInImports, r.Payload)
	case toolListExports:
		return listingFinding(leadInExports, r.Payload)
	case toolDecompile:
		name, _ := tools.GetString(r.Params, "name")
		return decompileFinding(name, r.Payload)
	case toolDecompileByAddress:
		address, _ := tools.GetString(r.Params, "address")
		return decompileFinding(address, r.Payload)
	case toolDisassemble:
		address, _ := tools.GetString(r.Params, "address")
		return fmt.Sprintf("Disassembly of the function at %s:\n%s", address, r.Payload)
	default:
		return fmt.Sprintf("Tool %s succeeded: %s", r.Tool, r.Payload)
	}
}

func listingFinding(leadIn, payload string) string {
	if strings.TrimSpace(payload) == "" {
		return leadIn + " (none)"
	}
	return leadIn + "\n" + payload
}

// decompileFinding attributes decompiled code to its function before
// quoting it.
func decompileFinding(target, code string) string {
	return fmt.Sprintf("%s %s:\n%s", leadInDecompiled, target, code)
}
