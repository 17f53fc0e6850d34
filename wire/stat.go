package wire

import "fmt"

// Stat describes a directory entry. It appears in Rstat and Twstat
// messages, and a stream of Stat records is how union.go synthesizes
// directory listings.
type Stat []byte

func (s Stat) Size() uint16   { return guint16(s[0:2]) }
func (s Stat) Type() uint16   { return guint16(s[2:4]) }
func (s Stat) Dev() uint32    { return guint32(s[4:8]) }
func (s Stat) Qid() Qid       { return Qid(s[8:21]) }
func (s Stat) Mode() uint32   { return guint32(s[21:25]) }
func (s Stat) Atime() uint32  { return guint32(s[25:29]) }
func (s Stat) Mtime() uint32  { return guint32(s[29:33]) }
func (s Stat) Length() int64  { return int64(guint64(s[33:41])) }
func (s Stat) Name() []byte   { return msg(s).nthField(41, 0) }
func (s Stat) Uid() []byte    { return msg(s).nthField(41, 1) }
func (s Stat) Gid() []byte    { return msg(s).nthField(41, 2) }
func (s Stat) Muid() []byte   { return msg(s).nthField(41, 3) }

func (s Stat) String() string {
	return fmt.Sprintf("type=%x dev=%x qid=%q mode=%o atime=%d mtime=%d "+
		"length=%d name=%q uid=%q gid=%q muid=%q", s.Type(), s.Dev(), s.Qid(),
		s.Mode(), s.Atime(), s.Mtime(), s.Length(), s.Name(), s.Uid(),
		s.Gid(), s.Muid())
}

// DMDIR and friends mirror the high bits of Stat.Mode, paralleling the
// QidType bits of the file's Qid.
const (
	DMDIR    = 0x80000000
	DMAPPEND = 0x40000000
	DMEXCL   = 0x20000000
	DMMOUNT  = 0x10000000
	DMAUTH   = 0x08000000
	DMTMP    = 0x04000000
	DMREAD   = 0x4
	DMWRITE  = 0x2
	DMEXEC   = 0x1
)

// verifyStat checks that a Stat record parses safely: every
// length-prefixed field must fit within the record and within the
// limits in limits.go. It must be run on every Stat that did not
// originate from this package's own Encoder.
func verifyStat(data []byte) error {
	if len(data) < minStatLen {
		return errShortStat
	} else if len(data) > maxStatLen {
		return errLongStat
	}
	if length := guint64(data[33:41]); length > MaxFileLen {
		return errLongLength
	}
	rest := data[41:]
	name, rest, err := verifyField(rest, false, 6)
	if err != nil {
		return err
	}
	if err := verifyString(name); err != nil {
		return err
	}
	if len(name) > MaxFilenameLen {
		return errLongFilename
	}
	var field []byte
	for i := 0; i < 3; i++ {
		field, rest, err = verifyField(rest, i == 2, 4-i*2)
		if err != nil {
			return err
		}
		if err := verifyString(field); err != nil {
			return err
		}
		if len(field) > MaxUidLen {
			return errLongUsername
		}
	}
	return nil
}
