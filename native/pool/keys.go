package pool

var (
	poolRecordPrefix = []byte("pool/record/")
	poolIndexKey     = []byte("pool/index")
	poolFeesPrefix   = []byte("pool/fees/")
)

func recordKey(id ID) []byte {
	return append(append([]byte(nil), poolRecordPrefix...), id.Hex()...)
}

func feesKey(id ID) []byte {
	return append(append([]byte(nil), poolFeesPrefix...), id.Hex()...)
}
