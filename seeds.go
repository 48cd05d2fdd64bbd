package sieve

// seeds is the shared pool that the k hash functions of every filter draw
// from, in order. Changing an entry changes every offset a filter computes
// and orphans the data already held in a store.
var seeds = [...]uint32{
	543, 460, 171, 876, 796, 607, 650, 81, 837, 545,
	591, 946, 846, 521, 913, 636, 878, 735, 414, 372,
	344, 324, 223, 180, 327, 891, 798, 933, 493, 293,
	836, 10, 6, 544, 924, 849, 438, 41, 862, 648,
	338, 465, 562, 693, 979, 52, 763, 103, 387, 374,
	349, 94, 384, 680, 574, 480, 307, 580, 71, 535,
	300, 53, 481, 519, 644, 219, 686, 236, 424, 326,
	244, 212, 909, 202, 951, 56, 812, 901, 926, 250,
	507, 739, 371, 63, 584, 154, 7, 284, 617, 332,
	472, 140, 605, 262, 355, 526, 647, 923, 199, 518,
}

// Seeds returns the first k seeds of the table.
func Seeds(k int) ([]uint32, error) {
	if k < 1 || k > len(seeds) {
		return nil, ErrTooManyHashes
	}
	out := make([]uint32, k)
	copy(out, seeds[:k])
	return out, nil
}
