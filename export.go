package motionheic

// AssembleContainer builds a JPEG/R container from compressed base and
// gain-map JPEGs plus raw EXIF/ICC and gain-map metadata segments.
func AssembleContainer(primaryJPEG, gainmapJPEG []byte, exif []byte, icc [][]byte, secondaryXMP []byte, secondaryISO []byte) ([]byte, error) {
	return assembleUltraHDR(
		&CompressedImage{Bytes: primaryJPEG},
		&CompressedImage{Bytes: gainmapJPEG},
		&containerParts{
			EXIF:         exif,
			ICC:          icc,
			SecondaryXMP: secondaryXMP,
			SecondaryISO: secondaryISO,
		})
}

// ExtractEXIFAndICC returns EXIF and ICC APP payloads from a JPEG.
func ExtractEXIFAndICC(jpegData []byte) ([]byte, [][]byte, error) {
	return extractExifAndIcc(jpegData)
}
