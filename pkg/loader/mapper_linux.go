package loader

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"unsafe"

	sys "golang.org/x/sys/unix"

	"github.com/uexec/uexec/pkg/elf32"
	"github.com/uexec/uexec/pkg/logflags"
)

func protFlags(f elf.ProgFlag) int {
	prot := sys.PROT_NONE
	if f&elf.PF_R != 0 {
		prot |= sys.PROT_READ
	}
	if f&elf.PF_W != 0 {
		prot |= sys.PROT_WRITE
	}
	if f&elf.PF_X != 0 {
		prot |= sys.PROT_EXEC
	}
	return prot
}

func pages(r pageRange) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(r.start))), r.end-r.start)
}

// MapSegments maps every PT_LOAD segment of d, read from the file at path,
// at its virtual address. Pages that hold file contents show the whole
// file page, as the kernel maps it; the part of each segment past its file
// size is zero. Memory that is already mapped is never replaced: a segment that
// would overlap an existing mapping fails with ErrSegmentOverlap and
// everything mapped so far is unmapped again.
func MapSegments(path string, d *elf32.Descriptor) (err error) {
	logger := logflags.LoaderLogger()
	pageSize := uint64(os.Getpagesize())

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	loads := d.Loads()
	ranges := make([]pageRange, 0, len(loads))
	for i, s := range loads {
		vaddr := uint64(s.VirtualAddress)
		start := roundDown(vaddr, pageSize)
		if uint64(s.FileOffset)%pageSize != vaddr%pageSize {
			return &MapError{i, vaddr, fmt.Errorf("file offset %#x not congruent to the address modulo the page size", s.FileOffset)}
		}
		ranges = append(ranges, pageRange{start, roundUp(vaddr+uint64(s.MemorySize), pageSize)})
	}
	sorted := append([]pageRange(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })
	regions := mergeRanges(sorted)

	var mapped []pageRange
	defer func() {
		if err == nil {
			return
		}
		for _, r := range mapped {
			sys.Munmap(pages(r))
		}
	}()

	for _, r := range regions {
		if r.end == r.start {
			continue
		}
		addr, err := sys.MmapPtr(-1, 0, unsafe.Pointer(uintptr(r.start)), uintptr(r.end-r.start), sys.PROT_READ|sys.PROT_WRITE, sys.MAP_PRIVATE|sys.MAP_ANONYMOUS|sys.MAP_FIXED_NOREPLACE)
		if err != nil {
			if errors.Is(err, sys.EEXIST) {
				err = ErrSegmentOverlap
			}
			return &MapError{-1, r.start, err}
		}
		if uint64(uintptr(addr)) != r.start {
			// Kernels older than 4.17 treat MAP_FIXED_NOREPLACE as a hint.
			sys.MunmapPtr(addr, uintptr(r.end-r.start))
			return &MapError{-1, r.start, ErrSegmentOverlap}
		}
		mapped = append(mapped, r)
		logger.Debugf("reserved %#x-%#x", r.start, r.end)
	}

	for i, s := range loads {
		if s.FileSize == 0 {
			continue
		}
		// The file is visible from the start of the first page of the
		// segment. Without bss it is visible up to the end of the last
		// page, otherwise the rest of that page is zero.
		vaddr := uint64(s.VirtualAddress)
		fileEnd := vaddr + uint64(s.FileSize)
		r := pageRange{ranges[i].start, fileEnd}
		if s.MemorySize == s.FileSize {
			r.end = roundUp(fileEnd, pageSize)
		}
		off := int64(s.FileOffset) - int64(vaddr-r.start)
		n, err := f.ReadAt(pages(r), off)
		if err != nil && !(errors.Is(err, io.EOF) && uint64(n) >= fileEnd-r.start) {
			return &MapError{i, vaddr, err}
		}
		if s.MemorySize > s.FileSize {
			clear(pages(pageRange{fileEnd, roundUp(fileEnd, pageSize)}))
		}
	}

	for i, s := range loads {
		if ranges[i].end == ranges[i].start {
			continue
		}
		prot := protFlags(s.Flags)
		for j, o := range loads {
			if j != i && ranges[i].overlaps(ranges[j]) {
				prot |= protFlags(o.Flags)
			}
		}
		if err := sys.Mprotect(pages(ranges[i]), prot); err != nil {
			return &MapError{i, ranges[i].start, err}
		}
		logger.Debugf("segment %d %#x-%#x %s", i, ranges[i].start, ranges[i].end, s.Perms())
	}
	return nil
}
