package jobqueue

import "encoding/binary"

// Keyspace, all under jq/{queue}/:
//
//	meta                      lastSeq (8B)
//	msg/{seq8}                priority (4B) | payload
//	prio/{prio4}{seq8}        availability index, lower priority first
//	delay/{fire8}{seq8}       delayed availability, by unix ms
//	lease/{seq8}              expiry ms (8B) | attempts (4B)
//	leaseidx/{exp8}{seq8}     lease expiry index for reclaim scans
func queuePrefix(queue string) string { return "jq/" + queue + "/" }

func keyMeta(queue string) []byte {
	return []byte(queuePrefix(queue) + "meta")
}

func keyMsg(queue string, seq uint64) []byte {
	prefix := queuePrefix(queue) + "msg/"
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], seq)
	return key
}

func keyPrio(queue string, priority uint32, seq uint64) []byte {
	prefix := queuePrefix(queue) + "prio/"
	key := make([]byte, len(prefix)+4+8)
	copy(key, prefix)
	binary.BigEndian.PutUint32(key[len(prefix):], priority)
	binary.BigEndian.PutUint64(key[len(prefix)+4:], seq)
	return key
}

func keyPrioPrefix(queue string) []byte {
	return []byte(queuePrefix(queue) + "prio/")
}

func keyDelay(queue string, fireMs int64, seq uint64) []byte {
	prefix := queuePrefix(queue) + "delay/"
	key := make([]byte, len(prefix)+8+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(fireMs))
	binary.BigEndian.PutUint64(key[len(prefix)+8:], seq)
	return key
}

func keyDelayPrefix(queue string) []byte {
	return []byte(queuePrefix(queue) + "delay/")
}

func keyLease(queue string, seq uint64) []byte {
	prefix := queuePrefix(queue) + "lease/"
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], seq)
	return key
}

func keyLeaseIdx(queue string, expMs int64, seq uint64) []byte {
	prefix := queuePrefix(queue) + "leaseidx/"
	key := make([]byte, len(prefix)+8+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(expMs))
	binary.BigEndian.PutUint64(key[len(prefix)+8:], seq)
	return key
}

func keyLeaseIdxPrefix(queue string) []byte {
	return []byte(queuePrefix(queue) + "leaseidx/")
}

func seqFromKeyTail(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}
