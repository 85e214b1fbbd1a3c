package asm

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Disassemble writes a listing of the amd64 code to w, one instruction per
// line with its offset and encoding.
func Disassemble(w io.Writer, code []byte) error {
	for offset := 0; offset < len(code); {
		inst, err := x86asm.Decode(code[offset:], 64)
		if err != nil {
			if _, err = fmt.Fprintf(w, "0x%04x: db 0x%02x\n", offset, code[offset]); err != nil {
				return err
			}
			offset++
			continue
		}

		hexBytes := make([]string, inst.Len)
		for i := range hexBytes {
			hexBytes[i] = fmt.Sprintf("%02x", code[offset+i])
		}
		if _, err = fmt.Fprintf(w, "0x%04x: %-30s %s\n", offset, strings.Join(hexBytes, " "), x86asm.IntelSyntax(inst, uint64(offset), nil)); err != nil {
			return err
		}
		offset += inst.Len
	}
	return nil
}
