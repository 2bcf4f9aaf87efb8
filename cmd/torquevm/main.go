package main

import (
	"fmt"
	"os"

	"github.com/kristofer/torquevm/internal/diagnostics"
	"github.com/kristofer/torquevm/internal/ident"
	"github.com/kristofer/torquevm/pkg/bytecode"
	"github.com/kristofer/torquevm/pkg/namespace"
	"github.com/kristofer/torquevm/pkg/simobject"
	"github.com/kristofer/torquevm/pkg/vm"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		if len(os.Args) < 3 {
			fmt.Println("Error: no file specified")
			fmt.Println("\nUsage: torquevm run <file.tcb>")
			os.Exit(1)
		}
		runFile(os.Args[2])
	case "disassemble", "disasm":
		if len(os.Args) < 3 {
			fmt.Println("Error: no file specified")
			fmt.Println("\nUsage: torquevm disassemble <file.tcb>")
			os.Exit(1)
		}
		disassembleFile(os.Args[2])
	case "version", "-v", "--version":
		fmt.Println("torquevm 0.1.0")
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Error: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("torquevm - a stack-based bytecode interpreter")
	fmt.Println("\nUsage:")
	fmt.Println("  torquevm run <file.tcb>         Execute a pre-encoded code block")
	fmt.Println("  torquevm disassemble <file.tcb> Disassemble a code block")
	fmt.Println("  torquevm version                Show version")
	fmt.Println("  torquevm help                    Show this help")
	fmt.Println("\nThere is no compiler in this tree; .tcb files are produced")
	fmt.Println("by pkg/bytecode.Encode from a hand-assembled or externally")
	fmt.Println("compiled instruction stream.")
}

// runFile loads a pre-encoded code block and executes it at its
// top-level (global) scope, printing whatever the execution leaves in
// the string workspace.
func runFile(filename string) {
	f, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	cb, err := bytecode.Decode(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading bytecode: %v\n", err)
		os.Exit(1)
	}

	idents := ident.New()
	nsService := namespace.NewService()
	objects := simobject.NewRegistry(nsService)
	diag := diagnostics.New(nil)

	engine := vm.NewEngine(idents, nsService, objects, diag)
	result := engine.Exec(cb, 0, vm.Options{SetFrame: -1})
	if result != "" {
		fmt.Println(result)
	}
}

// operandCounts gives the fixed operand-word count for every opcode
// except OpFuncDecl, whose trailing formal-name handles are variable
// length and handled separately below.
var operandCounts = map[bytecode.Opcode]int{
	bytecode.OpCreateObject: 3, bytecode.OpAddObject: 1, bytecode.OpEndObject: 1,
	bytecode.OpJmp: 1, bytecode.OpJmpIfFNot: 1, bytecode.OpJmpIfNot: 1,
	bytecode.OpJmpIfF: 1, bytecode.OpJmpIf: 1, bytecode.OpJmpIfNotNP: 1, bytecode.OpJmpIfNP: 1,
	bytecode.OpSetCurVar: 1, bytecode.OpSetCurVarCreate: 1,
	bytecode.OpSetCurField: 1, bytecode.OpSetCurFieldArray: 1,
	bytecode.OpLoadImmedUint: 1, bytecode.OpLoadImmedFlt: 1, bytecode.OpLoadImmedStr: 1,
	bytecode.OpLoadImmedIdent: 1, bytecode.OpTagToStr: 1,
	bytecode.OpCallFuncResolve: 3, bytecode.OpCallFunc: 3,
	bytecode.OpAdvanceStrAppendChar: 1, bytecode.OpAdvanceStrComma: 1, bytecode.OpAdvanceStrNul: 1,
	bytecode.OpPush: 1,
}

// disassembleFile prints a flat, one-instruction-per-line listing of a
// code block's instruction stream. It does not resolve identifier
// handles or string-table offsets to text since no identifier table
// survives a round trip through Encode/Decode; that resolution only
// happens live, inside Exec, against the table the running process
// built while interning.
func disassembleFile(filename string) {
	f, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	cb, err := bytecode.Decode(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading bytecode: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== %s ===\n", cb.Name)
	fmt.Printf("%d instruction words, %d global floats, %d global string bytes\n\n",
		len(cb.Code), len(cb.GlobalFloats), len(cb.GlobalStrings))

	code := cb.Code
	for ip := 0; ip < len(code); {
		op := bytecode.Opcode(code[ip])
		fmt.Printf("%6d: %s", ip, op)
		ip++

		if op == bytecode.OpFuncDecl {
			fmt.Printf(" name=%d ns=%d pkg=%d hasBody=%d formalCount=%d skip=%d",
				code[ip], code[ip+1], code[ip+2], code[ip+3], code[ip+4], code[ip+5])
			formalCount := int(code[ip+4])
			ip += 6
			for i := 0; i < formalCount && ip < len(code); i++ {
				fmt.Printf(" formal[%d]=%d", i, code[ip])
				ip++
			}
			fmt.Println()
			continue
		}

		n, ok := operandCounts[op]
		if !ok {
			fmt.Println()
			continue
		}
		for i := 0; i < n && ip < len(code); i++ {
			fmt.Printf(" %d", code[ip])
			ip++
		}
		fmt.Println()
	}
}
