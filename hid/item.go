package hid

import (
	"github.com/eightkbd/kbdctl/internal/kbderr"
)

// Direction distinguishes host-to-device (Out) from device-to-host (In)
// report items, mirroring a HID Input item (In) vs Output/Feature item
// (Out).
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
)

func (d Direction) String() string {
	if d == DirectionIn {
		return "in"
	}
	return "out"
}

// ItemFlag is the bitset carried by every Main item (Input/Output/Feature).
type ItemFlag uint16

const (
	FlagConstant ItemFlag = 1 << iota
	FlagVariable
	FlagRelative
	FlagWrap
	FlagNonLinear
	FlagNoPreferredState
	FlagNullState
	FlagVolatile
	FlagBufferedBytes
)

// ReportItem is a single Input/Output/Feature field, either carrying an
// explicit usage list or a contiguous usage range.
type ReportItem struct {
	Direction Direction
	ReportID  uint8
	Flags     ItemFlag

	UsageList          []uint32
	UsageMin, UsageMax uint32

	BitSize int
	Count   int
}

func (r *ReportItem) isNode() {}

// IsConstant reports whether this item is padding: it carries no usage
// and contributes only to bit alignment.
func (r *ReportItem) IsConstant() bool { return r.Flags&FlagConstant != 0 }

// CollectionFlag is the type byte of a Collection main item.
type CollectionFlag uint8

const (
	CollectionPhysical CollectionFlag = iota
	CollectionApplication
	CollectionLogical
	CollectionReport
	CollectionNamedArray
	CollectionUsageSwitch
	CollectionUsageModifier
)

const CollectionVendorMin CollectionFlag = 0x80

// Node is either a *Collection or a *ReportItem; children of a
// Collection are visited through this single tagged-variant contract.
type Node interface {
	isNode()
}

// Collection is a node in the HID report-item tree. Collection-id 0 is
// the synthetic root produced by Decode; every other id is assigned in
// pre-order starting at 1.
type Collection struct {
	ID       int
	Flag     CollectionFlag
	Usage    uint32
	Children []Node
}

func (c *Collection) isNode() {}

// BitSize is the bit-sum of every descendant non-collection item
// (size x count), including Constant padding items.
func (c *Collection) BitSize() int {
	total := 0
	for _, child := range c.Children {
		switch n := child.(type) {
		case *ReportItem:
			total += n.BitSize * n.Count
		case *Collection:
			total += n.BitSize()
		}
	}
	return total
}

// ByteSize rounds BitSize up to a whole number of bytes.
func (c *Collection) ByteSize() int {
	return (c.BitSize() + 7) / 8
}

// Short-item type field (bits 2-3 of the prefix byte).
const (
	itemTypeMain = iota
	itemTypeGlobal
	itemTypeLocal
	itemTypeReserved
)

// Global item tags.
const (
	tagUsagePage = iota
	tagLogicalMinimum
	tagLogicalMaximum
	tagPhysicalMinimum
	tagPhysicalMaximum
	tagUnitExponent
	tagUnit
	tagReportSize
	tagReportID
	tagReportCount
	tagPush
	tagPop
)

// Local item tags.
const (
	tagUsage = iota
	tagUsageMinimum
	tagUsageMaximum
	tagDesignatorIndex
	tagDesignatorMinimum
	tagDesignatorMaximum
	_
	tagStringIndex
	tagStringMinimum
	tagStringMaximum
	tagDelimiter
)

// Main item tags.
const (
	tagInput = 0x8
	tagOutput = 0x9
	tagCollection = 0xA
	tagFeature = 0xB
	tagEndCollection = 0xC
)

const longItemPrefix = 0xF7

// globalState is the HID global-item state restored by Pop and
// snapshotted by Push.
type globalState struct {
	usagePage    uint32
	logicalMin   int32
	logicalMax   int32
	physicalMin  int32
	physicalMax  int32
	unitExponent int32
	unit         uint32
	reportSize   int
	reportID     uint8
	reportCount  int
}

// localState is reset to zero after every Main item.
type localState struct {
	usageList          []uint32
	usageMin, usageMax uint32
}

// Decode walks a HID report-descriptor byte stream and builds the tree
// of Collections and ReportItems rooted at a synthetic id-0 Collection.
func Decode(data []byte) (*Collection, error) {
	root := &Collection{ID: 0, Flag: CollectionApplication}
	collStack := []*Collection{root}
	nextID := 1

	var global globalState
	var local localState
	var pushStack []globalState

	i := 0
	for i < len(data) {
		prefix := data[i]
		i++
		if prefix == longItemPrefix {
			if i+1 > len(data) {
				return nil, &kbderr.MalformedDescriptor{Reason: "truncated long item", Offset: i}
			}
			dataLen := int(data[i])
			i++ // tag byte
			i++
			if i+dataLen > len(data) {
				return nil, &kbderr.MalformedDescriptor{Reason: "truncated long item payload", Offset: i}
			}
			i += dataLen
			continue
		}

		sizeCode := prefix & 0x3
		size := [4]int{0, 1, 2, 4}[sizeCode]
		typ := (prefix >> 2) & 0x3
		tag := (prefix >> 4) & 0xF

		if i+size > len(data) {
			return nil, &kbderr.MalformedDescriptor{Reason: "truncated item data", Offset: i}
		}
		raw := data[i : i+size]
		i += size

		switch typ {
		case itemTypeMain:
			top := collStack[len(collStack)-1]
			switch tag {
			case tagCollection:
				usage := uint32(0)
				if len(local.usageList) > 0 {
					usage = local.usageList[0]
				} else {
					usage = local.usageMin
				}
				col := &Collection{
					ID:    nextID,
					Flag:  CollectionFlag(dataUint(raw)),
					Usage: usage,
				}
				nextID++
				top.Children = append(top.Children, col)
				collStack = append(collStack, col)
			case tagEndCollection:
				if len(collStack) > 1 {
					collStack = collStack[:len(collStack)-1]
				}
			case tagInput, tagOutput, tagFeature:
				dir := DirectionIn
				if tag != tagInput {
					dir = DirectionOut
				}
				item := &ReportItem{
					Direction: dir,
					ReportID:  global.reportID,
					Flags:     ItemFlag(dataUint(raw)),
					BitSize:   global.reportSize,
					Count:     global.reportCount,
				}
				if len(local.usageList) > 0 {
					item.UsageList = append([]uint32(nil), local.usageList...)
				} else {
					item.UsageMin = local.usageMin
					item.UsageMax = local.usageMax
				}
				top.Children = append(top.Children, item)
			}
			local = localState{}
		case itemTypeGlobal:
			switch tag {
			case tagUsagePage:
				v := dataUint(raw)
				if size <= 2 {
					v <<= 16
				}
				global.usagePage = v & 0xFFFF0000
			case tagLogicalMinimum:
				global.logicalMin = dataSint(raw)
			case tagLogicalMaximum:
				global.logicalMax = dataSint(raw)
			case tagPhysicalMinimum:
				global.physicalMin = dataSint(raw)
			case tagPhysicalMaximum:
				global.physicalMax = dataSint(raw)
			case tagUnitExponent:
				global.unitExponent = dataSint(raw)
			case tagUnit:
				global.unit = dataUint(raw)
			case tagReportSize:
				global.reportSize = int(dataUint(raw))
			case tagReportID:
				global.reportID = uint8(dataUint(raw))
			case tagReportCount:
				global.reportCount = int(dataUint(raw))
			case tagPush:
				pushStack = append(pushStack, global)
			case tagPop:
				if len(pushStack) > 0 {
					global = pushStack[len(pushStack)-1]
					pushStack = pushStack[:len(pushStack)-1]
				}
			}
		case itemTypeLocal:
			switch tag {
			case tagUsage:
				local.usageList = append(local.usageList, composeUsage(raw, size, global.usagePage))
			case tagUsageMinimum:
				local.usageMin = composeUsage(raw, size, global.usagePage)
			case tagUsageMaximum:
				local.usageMax = composeUsage(raw, size, global.usagePage)
			}
			// Designator*/String* locals are consumed above via raw's
			// byte-length advance; no field in ReportItem tracks them.
		default: // itemTypeReserved
		}
	}
	return root, nil
}

// composeUsage folds a Usage-Page's high 16 bits into a Usage(/Min/Max)
// local when the local itself was encoded in 2 bytes or fewer; a 4-byte
// local already carries a fully-qualified 32-bit usage.
func composeUsage(raw []byte, size int, usagePage uint32) uint32 {
	v := dataUint(raw)
	if size <= 2 {
		return v | usagePage
	}
	return v
}

// dataUint accumulates raw little-endian bytes into an unsigned value.
func dataUint(raw []byte) uint32 {
	var v uint32
	for i, b := range raw {
		v |= uint32(b) << uint(8*i)
	}
	return v
}

// dataSint interprets raw as a two's-complement signed integer whose
// width is exactly len(raw) bytes (0, 1, 2, or 4).
func dataSint(raw []byte) int32 {
	switch len(raw) {
	case 0:
		return 0
	case 1:
		return int32(int8(raw[0]))
	case 2:
		return int32(int16(dataUint(raw)))
	case 4:
		return int32(dataUint(raw))
	default:
		return int32(dataUint(raw))
	}
}

// Extract pulls a num_bits field out of buffer as a contiguous bit
// string read MSB-first within each byte: bit_offset counts bits
// already consumed from the top of the byte at byte_offset, and a field
// that spans bytes continues into the next byte's most-significant
// bits. The returned bytes are left-aligned — the field's first bit is
// the first byte's MSB — and the bits beyond num_bits in the final
// returned byte are zero.
func Extract(buffer []byte, byteOffset, bitOffset, numBits int) []byte {
	if numBits <= 0 {
		return nil
	}
	numBytes := (numBits + 7) / 8
	out := make([]byte, numBytes)
	start := byteOffset*8 + bitOffset
	for i := 0; i < numBits; i++ {
		srcBit := start + i
		srcByte := srcBit / 8
		if srcByte >= len(buffer) {
			break
		}
		bit := (buffer[srcByte] >> uint(7-srcBit%8)) & 1
		if bit != 0 {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}

// GetReports builds the derived report_id -> Collection index for one
// direction: a shadow tree duplicating only the collection path needed
// to reach each matching item. Constant items are retained (they still
// occupy bits the report codec must account for) but carry no usage.
func GetReports(root *Collection, dir Direction) map[uint8]*Collection {
	type shadowKey struct {
		rid uint8
		id  int
	}
	shadows := map[shadowKey]*Collection{}
	attached := map[shadowKey]map[int]bool{}
	result := map[uint8]*Collection{}

	shadowFor := func(rid uint8, orig *Collection) *Collection {
		k := shadowKey{rid, orig.ID}
		if sh, ok := shadows[k]; ok {
			return sh
		}
		sh := &Collection{ID: orig.ID, Flag: orig.Flag, Usage: orig.Usage}
		shadows[k] = sh
		return sh
	}

	var walk func(col *Collection, ancestors []*Collection)
	walk = func(col *Collection, ancestors []*Collection) {
		path := make([]*Collection, len(ancestors)+1)
		copy(path, ancestors)
		path[len(ancestors)] = col
		for _, child := range col.Children {
			switch n := child.(type) {
			case *Collection:
				walk(n, path)
			case *ReportItem:
				if n.Direction != dir {
					continue
				}
				rid := n.ReportID
				var parentShadow *Collection
				for idx, anc := range path {
					sh := shadowFor(rid, anc)
					if idx == 0 {
						if _, ok := result[rid]; !ok {
							result[rid] = sh
						}
					} else {
						pk := shadowKey{rid, path[idx-1].ID}
						if attached[pk] == nil {
							attached[pk] = map[int]bool{}
						}
						if !attached[pk][anc.ID] {
							parentShadow.Children = append(parentShadow.Children, sh)
							attached[pk][anc.ID] = true
						}
					}
					parentShadow = sh
				}
				itemCopy := *n
				parentShadow.Children = append(parentShadow.Children, &itemCopy)
			}
		}
	}
	walk(root, nil)
	return result
}

// ValidReportIDs returns the report ids present in a GetReports index,
// in no particular order, for BadReportId's diagnostic message.
func ValidReportIDs(reports map[uint8]*Collection) []uint8 {
	ids := make([]uint8, 0, len(reports))
	for id := range reports {
		ids = append(ids, id)
	}
	return ids
}
