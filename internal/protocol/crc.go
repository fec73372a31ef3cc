package protocol

// CRC-16/XMODEM parameters used by the tracker firmware
const (
	CRC16Polynomial   = 0x1021
	CRC16InitialValue = 0x0000
)

// crcTable is the byte-wise lookup table for CRC16. It is filled once at
// package init and never written afterwards.
var crcTable = makeCRCTable(CRC16Polynomial)

func makeCRCTable(poly uint16) [256]uint16 {
	var table [256]uint16
	for i := range table {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}

// CRC16 computes the CRC-16/XMODEM checksum of data
//
// Polynomial 0x1021, initial value 0, MSB first, no final XOR. This is the
// checksum carried big-endian in the last two bytes of every frame and of
// every reassembled block.
func CRC16(data []byte) uint16 {
	crc := uint16(CRC16InitialValue)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}
