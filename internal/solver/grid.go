package solver

// CellCoords maps a zero-based cell index to 1-based CSS nth-of-type
// coordinates on a size x size grid.
func CellCoords(index, size int) (x, y int) {
	return index%size + 1, index/size + 1
}

// EffectiveSize derives the true grid dimension from the rendered row count.
// The widget renders raw row counts of 6 and 8 at half scale, so those are
// halved unless the cell count says the grid really is that large.
func EffectiveSize(rows, cells int) int {
	if (rows == 6 || rows == 8) && cells != rows*rows {
		return rows / 2
	}
	return rows
}
