// Package auxv locates and rewrites the argument block a process is
// started with.
//
// On Linux the kernel leaves the following words, each the size of a
// pointer, at the address the initial stack pointer refers to:
//
//	argc
//	argv[0] ... argv[argc-1]
//	NULL
//	envp[0] ... envp[m-1]
//	NULL
//	auxv[0] ... (tag, value) pairs
//	AT_NULL, 0
//
// For a description of the auxiliary vector (auxv) format see:
// System V Application Binary Interface, AMD64 Architecture Processor
// Supplement, section 3.4.3.
// System V Application Binary Interface, Intel386 Architecture Processor
// Supplement (fourth edition), section 3-28.
//
// This layout is an implicit contract between the kernel and the program
// it starts; nothing in the file format describes it. The code in this
// package relies on it being intact at the time Locate is called: the argc
// slot is found by walking back argc+2 words from envp, and the auxiliary
// vector by walking forward past the envp terminator. Deviations are
// reported as ErrLayoutMismatch rather than corrected.
//
// All accesses go through Block, a bounds checked view over the memory
// holding the argument block, so that synthetic layouts built in tests and
// the live initial stack of the process are handled by the same code.
package auxv
