package protocol

import "strconv"

// Packet types. Init and Version are the two handshake-only types; they are
// the only packets on the wire without a request id after the type byte.
const (
	TypeInit          uint8 = 1
	TypeVersion       uint8 = 2
	TypeOpen          uint8 = 3
	TypeClose         uint8 = 4
	TypeRead          uint8 = 5
	TypeWrite         uint8 = 6
	TypeLstat         uint8 = 7
	TypeFstat         uint8 = 8
	TypeSetstat       uint8 = 9
	TypeFsetstat      uint8 = 10
	TypeOpendir       uint8 = 11
	TypeReaddir       uint8 = 12
	TypeRemove        uint8 = 13
	TypeMkdir         uint8 = 14
	TypeRmdir         uint8 = 15
	TypeRealpath      uint8 = 16
	TypeStat          uint8 = 17
	TypeRename        uint8 = 18
	TypeReadlink      uint8 = 19
	TypeSymlink       uint8 = 20
	TypeLink          uint8 = 21
	TypeBlock         uint8 = 22
	TypeUnblock       uint8 = 23
	TypeStatus        uint8 = 101
	TypeHandle        uint8 = 102
	TypeData          uint8 = 103
	TypeName          uint8 = 104
	TypeAttrs         uint8 = 105
	TypeExtended      uint8 = 200
	TypeExtendedReply uint8 = 201
)

// Protocol versions this client understands. The init packet always
// advertises VersionMax; the server picks anything in [VersionMin, VersionMax].
const (
	VersionMin uint32 = 3
	VersionMax uint32 = 6
)

// Status codes carried by STATUS packets.
const (
	StatusOK            uint32 = 0
	StatusEOF           uint32 = 1
	StatusNoSuchFile    uint32 = 2
	StatusPermDenied    uint32 = 3
	StatusFailure       uint32 = 4
	StatusBadMessage    uint32 = 5
	StatusNoConnection  uint32 = 6
	StatusConnLost      uint32 = 7
	StatusOpUnsupported uint32 = 8
)

// Extension names consulted by version renegotiation.
const (
	ExtVersionSelect = "version-select"
	ExtVersions      = "versions"
)

// TypeNames maps packet types to human-readable names for logging.
var TypeNames = map[uint8]string{
	TypeInit:          "INIT",
	TypeVersion:       "VERSION",
	TypeOpen:          "OPEN",
	TypeClose:         "CLOSE",
	TypeRead:          "READ",
	TypeWrite:         "WRITE",
	TypeLstat:         "LSTAT",
	TypeFstat:         "FSTAT",
	TypeSetstat:       "SETSTAT",
	TypeFsetstat:      "FSETSTAT",
	TypeOpendir:       "OPENDIR",
	TypeReaddir:       "READDIR",
	TypeRemove:        "REMOVE",
	TypeMkdir:         "MKDIR",
	TypeRmdir:         "RMDIR",
	TypeRealpath:      "REALPATH",
	TypeStat:          "STAT",
	TypeRename:        "RENAME",
	TypeReadlink:      "READLINK",
	TypeSymlink:       "SYMLINK",
	TypeLink:          "LINK",
	TypeBlock:         "BLOCK",
	TypeUnblock:       "UNBLOCK",
	TypeStatus:        "STATUS",
	TypeHandle:        "HANDLE",
	TypeData:          "DATA",
	TypeName:          "NAME",
	TypeAttrs:         "ATTRS",
	TypeExtended:      "EXTENDED",
	TypeExtendedReply: "EXTENDED_REPLY",
}

// StatusNames maps status codes to human-readable names for logging.
var StatusNames = map[uint32]string{
	StatusOK:            "OK",
	StatusEOF:           "EOF",
	StatusNoSuchFile:    "NO_SUCH_FILE",
	StatusPermDenied:    "PERMISSION_DENIED",
	StatusFailure:       "FAILURE",
	StatusBadMessage:    "BAD_MESSAGE",
	StatusNoConnection:  "NO_CONNECTION",
	StatusConnLost:      "CONNECTION_LOST",
	StatusOpUnsupported: "OP_UNSUPPORTED",
}

// TypeString returns the symbolic name of a packet type, or its decimal form
// for types this client never interprets.
func TypeString(t uint8) string {
	if name, ok := TypeNames[t]; ok {
		return name
	}
	return strconv.Itoa(int(t))
}

// StatusString returns the symbolic name of a status code.
func StatusString(code uint32) string {
	if name, ok := StatusNames[code]; ok {
		return name
	}
	return strconv.FormatUint(uint64(code), 10)
}
