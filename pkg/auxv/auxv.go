package auxv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Tag is the type of an auxiliary vector entry.
type Tag uint64

const (
	AT_NULL          Tag = 0
	AT_IGNORE        Tag = 1
	AT_EXECFD        Tag = 2
	AT_PHDR          Tag = 3
	AT_PHENT         Tag = 4
	AT_PHNUM         Tag = 5
	AT_PAGESZ        Tag = 6
	AT_BASE          Tag = 7
	AT_FLAGS         Tag = 8
	AT_ENTRY         Tag = 9
	AT_NOTELF        Tag = 10
	AT_UID           Tag = 11
	AT_EUID          Tag = 12
	AT_GID           Tag = 13
	AT_EGID          Tag = 14
	AT_PLATFORM      Tag = 15
	AT_HWCAP         Tag = 16
	AT_CLKTCK        Tag = 17
	AT_SECURE        Tag = 23
	AT_BASE_PLATFORM Tag = 24
	AT_RANDOM        Tag = 25
	AT_HWCAP2        Tag = 26
	AT_EXECFN        Tag = 31
	AT_SYSINFO       Tag = 32
	AT_SYSINFO_EHDR  Tag = 33
	AT_MINSIGSTKSZ   Tag = 51
)

var tagNames = map[Tag]string{
	AT_NULL:          "AT_NULL",
	AT_IGNORE:        "AT_IGNORE",
	AT_EXECFD:        "AT_EXECFD",
	AT_PHDR:          "AT_PHDR",
	AT_PHENT:         "AT_PHENT",
	AT_PHNUM:         "AT_PHNUM",
	AT_PAGESZ:        "AT_PAGESZ",
	AT_BASE:          "AT_BASE",
	AT_FLAGS:         "AT_FLAGS",
	AT_ENTRY:         "AT_ENTRY",
	AT_NOTELF:        "AT_NOTELF",
	AT_UID:           "AT_UID",
	AT_EUID:          "AT_EUID",
	AT_GID:           "AT_GID",
	AT_EGID:          "AT_EGID",
	AT_PLATFORM:      "AT_PLATFORM",
	AT_HWCAP:         "AT_HWCAP",
	AT_CLKTCK:        "AT_CLKTCK",
	AT_SECURE:        "AT_SECURE",
	AT_BASE_PLATFORM: "AT_BASE_PLATFORM",
	AT_RANDOM:        "AT_RANDOM",
	AT_HWCAP2:        "AT_HWCAP2",
	AT_EXECFN:        "AT_EXECFN",
	AT_SYSINFO:       "AT_SYSINFO",
	AT_SYSINFO_EHDR:  "AT_SYSINFO_EHDR",
	AT_MINSIGSTKSZ:   "AT_MINSIGSTKSZ",
}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return fmt.Sprintf("AT_%d", uint64(t))
}

// Entry is one (tag, value) pair of the auxiliary vector.
type Entry struct {
	Tag   Tag
	Value uint64
}

// Entries decodes a raw auxiliary vector, as found in /proc/<pid>/auxv,
// up to but excluding the AT_NULL terminator.
func Entries(auxv []byte, ptrSize int, order binary.ByteOrder) ([]Entry, error) {
	rd := bytes.NewBuffer(auxv)

	var r []Entry
	for {
		tag, err := readUintRaw(rd, order, ptrSize)
		if err != nil {
			return r, fmt.Errorf("auxiliary vector not terminated: %w", err)
		}
		val, err := readUintRaw(rd, order, ptrSize)
		if err != nil {
			return r, fmt.Errorf("auxiliary vector not terminated: %w", err)
		}
		if Tag(tag) == AT_NULL {
			return r, nil
		}
		r = append(r, Entry{Tag(tag), val})
	}
}

// readUintRaw reads an integer of ptrSize bytes, with the specified byte order, from reader.
func readUintRaw(reader io.Reader, order binary.ByteOrder, ptrSize int) (uint64, error) {
	switch ptrSize {
	case 4:
		var n uint32
		if err := binary.Read(reader, order, &n); err != nil {
			return 0, err
		}
		return uint64(n), nil
	case 8:
		var n uint64
		if err := binary.Read(reader, order, &n); err != nil {
			return 0, err
		}
		return n, nil
	}
	return 0, fmt.Errorf("not supported ptr size %d", ptrSize)
}
