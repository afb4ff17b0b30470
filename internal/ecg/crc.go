package ecg

// crc16Poly and crc16Init parameterize CRC-16/CCITT-FALSE, the checksum the
// acquisition board applies over the LEN..payload bytes of each frame.
const (
	crc16Poly = 0x1021
	crc16Init = 0xFFFF
)

// CRC16CCITT computes the CRC-16/CCITT-FALSE checksum of data.
func CRC16CCITT(data []byte) uint16 {
	crc := uint16(crc16Init)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
