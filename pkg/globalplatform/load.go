package globalplatform

import (
	"archive/zip"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DefaultBlockSize is the largest LOAD payload that still leaves room
// for the 8-byte SCP02 MAC inside a short-form APDU.
const DefaultBlockSize = 255 - 8

// capComponents is the JavaCard-mandated order in which CAP file
// components are concatenated into the load file.
var capComponents = []string{
	"Header",
	"Directory",
	"Import",
	"Applet",
	"Class",
	"Method",
	"StaticField",
	"Export",
	"ConstantPool",
	"RefLocation",
	"Descriptor",
}

// LoadStream cuts a load file into LOAD command blocks. The load file
// is wrapped as a BER-TLV data block (tag C4) before splitting, so the
// first block starts with the tag and length.
type LoadStream struct {
	data      []byte
	position  int
	blockSize int
	blocks    int
	current   int
}

// NewLoadStream wraps raw load file data (the concatenated CAP
// components) and prepares block iteration. blockSize 0 means
// DefaultBlockSize.
func NewLoadStream(loadFileData []byte, blockSize int) *LoadStream {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	length := encodeLength(len(loadFileData))
	data := make([]byte, 0, 1+len(length)+len(loadFileData))
	data = append(data, TAG_LOAD_FILE_DATA_BLOCK)
	data = append(data, length...)
	data = append(data, loadFileData...)

	return &LoadStream{
		data:      data,
		blockSize: blockSize,
		blocks:    (len(data) + blockSize - 1) / blockSize,
	}
}

// LoadStreamFromCAP reads a CAP archive and assembles its components
// in load order.
func LoadStreamFromCAP(r io.ReaderAt, size int64, blockSize int) (*LoadStream, error) {
	archive, err := zip.NewReader(r, size)
	if err != nil {
		return nil, &CAPError{Reason: "not a ZIP archive"}
	}

	components, err := readCAPComponents(archive)
	if err != nil {
		return nil, err
	}

	var loadFile []byte
	for _, name := range capComponents {
		loadFile = append(loadFile, components[name]...)
	}
	if len(loadFile) == 0 {
		return nil, &CAPError{Reason: "no CAP components found"}
	}

	return NewLoadStream(loadFile, blockSize), nil
}

// Blocks returns the total number of blocks.
func (s *LoadStream) Blocks() int {
	return s.blocks
}

// CurrentBlock returns the index of the next block to emit.
func (s *LoadStream) CurrentBlock() int {
	return s.current
}

// HasNext reports whether blocks remain.
func (s *LoadStream) HasNext() bool {
	return s.position < len(s.data)
}

// NextBlock returns the next block, its index, and whether it is the
// last one. ok is false when the stream is exhausted.
func (s *LoadStream) NextBlock() (last bool, index byte, block []byte, ok bool) {
	if !s.HasNext() {
		return false, 0, nil, false
	}

	remaining := len(s.data) - s.position
	size := s.blockSize
	if remaining < size {
		size = remaining
	}

	last = remaining <= s.blockSize
	index = byte(s.current)
	block = s.data[s.position : s.position+size]

	s.position += size
	s.current++
	return last, index, block, true
}

// encodeLength emits a BER-TLV length field.
func encodeLength(length int) []byte {
	switch {
	case length < 0x80:
		return []byte{byte(length)}
	case length < 0x100:
		return []byte{0x81, byte(length)}
	case length < 0x10000:
		return []byte{0x82, byte(length >> 8), byte(length)}
	default:
		return []byte{0x83, byte(length >> 16), byte(length >> 8), byte(length)}
	}
}

// CAPInfo describes a CAP archive: its package identity and the
// applets it provides.
type CAPInfo struct {
	PackageAID []byte
	Version    [2]byte
	AppletAIDs [][]byte
	AppletNames []string
	Files      []string
}

// ExtractCAPInfo reads package and applet identities from a CAP
// archive: the manifest when present, the raw Header component as a
// fallback.
func ExtractCAPInfo(r io.ReaderAt, size int64) (*CAPInfo, error) {
	archive, err := zip.NewReader(r, size)
	if err != nil {
		return nil, &CAPError{Reason: "not a ZIP archive"}
	}

	info := &CAPInfo{}
	for _, f := range archive.File {
		info.Files = append(info.Files, f.Name)
	}

	if manifest := findArchiveFile(archive, "META-INF/MANIFEST.MF"); manifest != nil {
		data, err := readArchiveFile(manifest)
		if err == nil {
			parseManifest(string(data), info)
		}
	}

	if info.PackageAID == nil {
		components, err := readCAPComponents(archive)
		if err != nil {
			return nil, err
		}
		parseHeaderComponent(components["Header"], info)
	}

	return info, nil
}

func readCAPComponents(archive *zip.Reader) (map[string][]byte, error) {
	components := make(map[string][]byte)
	for _, name := range capComponents {
		f := findArchiveSuffix(archive, "/"+name+".cap")
		if f == nil {
			f = findArchiveSuffix(archive, "/"+name)
		}
		if f == nil {
			continue
		}
		data, err := readArchiveFile(f)
		if err != nil {
			return nil, &CAPError{Reason: fmt.Sprintf("reading component %s", name)}
		}
		components[name] = data
	}
	return components, nil
}

func findArchiveFile(archive *zip.Reader, name string) *zip.File {
	for _, f := range archive.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func findArchiveSuffix(archive *zip.Reader, suffix string) *zip.File {
	for _, f := range archive.File {
		if strings.HasSuffix(f.Name, suffix) {
			return f
		}
	}
	return nil
}

func readArchiveFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// parseManifest extracts AIDs and versions from the JavaCard manifest
// attributes (Java-Card-Package-AID, Java-Card-Applet-N-AID, ...).
func parseManifest(manifest string, info *CAPInfo) {
	if aid, ok := manifestAID(manifest, "Java-Card-Package-AID:"); ok {
		info.PackageAID = aid
	}

	if value, ok := manifestValue(manifest, "Java-Card-Package-Version:"); ok {
		parts := strings.SplitN(value, ".", 2)
		if len(parts) == 2 {
			major, errMajor := strconv.Atoi(strings.TrimSpace(parts[0]))
			minor, errMinor := strconv.Atoi(strings.TrimSpace(parts[1]))
			if errMajor == nil && errMinor == nil {
				info.Version = [2]byte{byte(major), byte(minor)}
			}
		}
	}

	for i := 1; ; i++ {
		aid, ok := manifestAID(manifest, fmt.Sprintf("Java-Card-Applet-%d-AID:", i))
		if !ok {
			break
		}
		info.AppletAIDs = append(info.AppletAIDs, aid)

		name, _ := manifestValue(manifest, fmt.Sprintf("Java-Card-Applet-%d-Name:", i))
		info.AppletNames = append(info.AppletNames, name)
	}
}

func manifestValue(manifest, key string) (string, bool) {
	for _, line := range strings.Split(manifest, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, key) {
			return strings.TrimSpace(line[len(key):]), true
		}
	}
	return "", false
}

// manifestAID parses the 0xa0:0x00:... AID notation.
func manifestAID(manifest, key string) ([]byte, bool) {
	value, ok := manifestValue(manifest, key)
	if !ok {
		return nil, false
	}

	var aid []byte
	for _, part := range strings.Split(value, ":") {
		part = strings.TrimPrefix(strings.TrimSpace(part), "0x")
		b, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return nil, false
		}
		aid = append(aid, byte(b))
	}
	return aid, len(aid) > 0
}

// parseHeaderComponent pulls version and package AID out of the raw
// Header component layout.
func parseHeaderComponent(header []byte, info *CAPInfo) {
	if len(header) < 15 {
		return
	}

	info.Version = [2]byte{header[4], header[5]}

	aidLen := int(header[13])
	if aidLen < 16 && 14+aidLen <= len(header) {
		info.PackageAID = append([]byte(nil), header[14:14+aidLen]...)
	}
}
