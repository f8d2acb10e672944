/*
Package calbuf implements row buffers for calibration solution tables, and a
small append-only table store (on top of Bolt) to persist them.

We implement:

1. Buffers, in-memory windows onto a set of calibration solution rows. A buffer
is either bound to an Iterator (its columns mirror the iterator's current row
set and are fetched lazily) or detached (built from explicit index values).

2. Three buffer kinds forming a fixed chain: Buffer holds complex gain
solutions, PolyBuffer adds polynomial fit columns, SplineBuffer adds spline
knots on top of those.

3. Tables, append-only sequences of rows with a schema (buffer kind plus index
types), and a Store keeping named tables in a Bolt file.

4. TableIterator, walking a table in groups of rows sharing one index value.

# Technical Details

**Slots.**
Every column lives in a Slot: a value plus a valid flag. An invalid slot of a
bound buffer is refilled from the iterator on the next access; an invalid slot
of a detached buffer is filled with the column's default value. Invalidate
clears all slots of a bound buffer; iterators that implement Watcher call it on
every move.

**Fill and append.**
FillMatchingRows validates all inputs before writing anything, so a failed call
never leaves half-written rows. Append copies the buffer's rows into a table;
the buffer itself is unchanged.

## Storage layout

Bucket `_catalog` maps table names to msgpack-encoded schemas. Bucket
`<table>/rows` maps big-endian uint64 row numbers to encoded rows. Row numbers
are contiguous from zero, so the next row number is the last key plus one.

**Row value**:
1. Flags (uvarint). Bit 0: payload is zstd-compressed.
2. xxhash64 of the payload (8 bytes, little-endian).
3. Payload: msgpack of the row.
*/
package calbuf
