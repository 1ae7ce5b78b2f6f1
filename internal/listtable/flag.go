package listtable

// Flag is a dense, stable (list, flag-within-list) pair, assigned at image
// load time. It is the unit list values are built from.
type Flag struct {
	ListID int16
	Index  int16 // index within its declaring list, not the global bit position
}

// NullFlag is the value of an unset flag reference.
var NullFlag = Flag{ListID: -1, Index: -1}

// EmptyFlag marks "a list value with no declaring list yet" (an empty
// literal before it has been unioned with anything).
var EmptyFlag = Flag{ListID: -1, Index: 0}

func (f Flag) IsNull() bool { return f.ListID < 0 && f.Index < 0 }
