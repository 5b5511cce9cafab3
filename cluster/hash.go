package cluster

import "strings"

const numSlots = 16384

// Slot returns the hash slot a key routes to: CRC16-CCITT of the hash-tag
// substring (if the key has a non-empty "{...}" tag) or the whole key,
// modulo the 16384-slot space.
func Slot(key string) int {
	return int(crc16([]byte(hashTag(key))) % numSlots)
}

// hashTag extracts the substring between the first "{" and the next "}"
// after it, provided that substring is non-empty. Keys without a tag, or
// with an empty "{}" pair, hash on the whole key.
func hashTag(key string) string {
	start := strings.IndexByte(key, '{')
	if start < 0 {
		return key
	}
	end := strings.IndexByte(key[start+1:], '}')
	if end < 0 {
		return key
	}
	if end == 0 {
		return key
	}
	return key[start+1 : start+1+end]
}

// crc16 is the CCITT variant Redis Cluster uses: polynomial 0x1021, initial
// value 0, no input/output reflection, no final xor.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
