package queue

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrRateLimited indicates the operation was rate limited
	ErrRateLimited = errors.New("rate limited")

	// ErrQueueClosed indicates the queue is closed
	ErrQueueClosed = errors.New("queue closed")

	// ErrQueueEmpty is returned by TryDequeue when nothing is ready
	ErrQueueEmpty = errors.New("queue empty")

	// ErrCorruptedData indicates corrupted data in the overflow file
	ErrCorruptedData = errors.New("corrupted data in overflow file")
)

const (
	prefixSize    = 4
	maxRecordSize = 1 << 20
)

// Options configures a HybridQueue.
type Options struct {
	Name       string // overflow file is <Dir>/<Name>.overflow
	Dir        string
	MemorySize int
	Rate       float64 // records per second admitted, 0 disables limiting
	Burst      int
}

// HybridQueue is a FIFO of byte records held in memory that overflows to a
// length-prefixed file. Once anything is on disk new records go to disk
// too, so order is kept across the boundary. Records still queued at Close
// are written back to the overflow file and picked up by the next queue
// opened with the same name. Requeued records sit ahead of everything else.
type HybridQueue struct {
	name string
	path string

	memQueue chan []byte
	memSize  int

	headMu sync.Mutex
	head   [][]byte

	diskMu     sync.Mutex
	diskFile   *os.File
	diskWriter *bufio.Writer
	readFile   *os.File
	readOffset int64

	depth     atomic.Int64
	diskBytes atomic.Int64
	memCount  atomic.Int64

	limiter *rate.Limiter

	closed  atomic.Bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewHybridQueue opens the queue, resuming any records a previous instance
// left in the overflow file.
func NewHybridQueue(opts Options) (*HybridQueue, error) {
	if opts.Name == "" {
		return nil, errors.New("queue name is required")
	}
	if opts.MemorySize <= 0 {
		return nil, fmt.Errorf("memory size must be positive, got %d", opts.MemorySize)
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create queue dir: %w", err)
	}

	path := filepath.Join(opts.Dir, opts.Name+".overflow")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open overflow file: %w", err)
	}
	readFile, err := os.Open(path)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to open overflow read handle: %w", err)
	}

	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = opts.MemorySize
	}

	q := &HybridQueue{
		name:       opts.Name,
		path:       path,
		memQueue:   make(chan []byte, opts.MemorySize),
		memSize:    opts.MemorySize,
		diskFile:   file,
		diskWriter: bufio.NewWriterSize(file, 64*1024),
		readFile:   readFile,
		limiter:    rate.NewLimiter(limit, burst),
		closeCh:    make(chan struct{}),
	}

	if err := q.resume(); err != nil {
		file.Close()
		readFile.Close()
		return nil, err
	}

	q.wg.Add(1)
	go q.diskToMemoryPump()

	return q, nil
}

// resume counts the complete records already in the overflow file.
func (q *HybridQueue) resume() error {
	r := bufio.NewReader(q.readFile)
	var records, size int64
	for {
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("failed to scan overflow file: %w", err)
		}
		if length > maxRecordSize {
			return fmt.Errorf("%w: record of %d bytes", ErrCorruptedData, length)
		}
		if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			break
		}
		records++
		size += prefixSize + int64(length)
	}

	// Drop a torn record left by a crash mid-write.
	if err := q.diskFile.Truncate(size); err != nil {
		return fmt.Errorf("failed to trim overflow file: %w", err)
	}
	q.depth.Store(records)
	q.diskBytes.Store(size)
	return nil
}

// Enqueue appends a copy of data.
func (q *HybridQueue) Enqueue(data []byte) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	if len(data) > maxRecordSize {
		return fmt.Errorf("record of %d bytes exceeds %d", len(data), maxRecordSize)
	}
	if !q.limiter.Allow() {
		return ErrRateLimited
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	if !q.HasDiskData() {
		select {
		case q.memQueue <- dataCopy:
			q.depth.Add(1)
			q.memCount.Add(1)
			return nil
		default:
		}
	}
	return q.writeToDisk(dataCopy)
}

func (q *HybridQueue) writeToDisk(data []byte) error {
	q.diskMu.Lock()
	defer q.diskMu.Unlock()

	if err := binary.Write(q.diskWriter, binary.BigEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("failed to write length: %w", err)
	}
	if _, err := q.diskWriter.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := q.diskWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	q.depth.Add(1)
	q.diskBytes.Add(int64(prefixSize + len(data)))
	return nil
}

// Requeue puts a dequeued record back at the head of the queue. It is not
// rate limited.
func (q *HybridQueue) Requeue(data []byte) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	q.headMu.Lock()
	q.head = append([][]byte{dataCopy}, q.head...)
	q.headMu.Unlock()
	q.depth.Add(1)
	return nil
}

func (q *HybridQueue) popHead() ([]byte, bool) {
	q.headMu.Lock()
	defer q.headMu.Unlock()
	if len(q.head) == 0 {
		return nil, false
	}
	data := q.head[0]
	q.head = q.head[1:]
	q.depth.Add(-1)
	return data, true
}

// Dequeue blocks until a record is available, ctx is done or the queue is
// closed.
func (q *HybridQueue) Dequeue(ctx context.Context) ([]byte, error) {
	if data, ok := q.popHead(); ok {
		return data, nil
	}
	select {
	case data := <-q.memQueue:
		q.took()
		return data, nil
	default:
	}

	select {
	case data := <-q.memQueue:
		q.took()
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.closeCh:
		return nil, ErrQueueClosed
	}
}

// DequeueTimeout is Dequeue bounded by timeout.
func (q *HybridQueue) DequeueTimeout(timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return q.Dequeue(ctx)
}

// TryDequeue returns the head record without blocking.
func (q *HybridQueue) TryDequeue() ([]byte, error) {
	if data, ok := q.popHead(); ok {
		return data, nil
	}
	select {
	case data := <-q.memQueue:
		q.took()
		return data, nil
	default:
		if q.closed.Load() {
			return nil, ErrQueueClosed
		}
		return nil, ErrQueueEmpty
	}
}

func (q *HybridQueue) took() {
	q.depth.Add(-1)
	q.memCount.Add(-1)
}

// diskToMemoryPump moves records from the overflow file into memory as
// space frees up. A record counts as on disk until it is in memory.
func (q *HybridQueue) diskToMemoryPump() {
	defer q.wg.Done()

	for {
		if !q.HasDiskData() {
			if !q.wait(10 * time.Millisecond) {
				return
			}
			continue
		}

		data, err := q.peekDisk()
		if err != nil {
			if !q.wait(50 * time.Millisecond) {
				return
			}
			continue
		}

		select {
		case q.memQueue <- data:
			q.memCount.Add(1)
			q.commitDisk(len(data))
		case <-q.closeCh:
			return
		}
	}
}

func (q *HybridQueue) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-q.closeCh:
		return false
	case <-timer.C:
		return true
	}
}

// peekDisk reads the record at the read offset without consuming it.
func (q *HybridQueue) peekDisk() ([]byte, error) {
	q.diskMu.Lock()
	defer q.diskMu.Unlock()

	var prefix [prefixSize]byte
	if _, err := q.readFile.ReadAt(prefix[:], q.readOffset); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(prefix[:])
	if length > maxRecordSize {
		return nil, ErrCorruptedData
	}

	data := make([]byte, length)
	if _, err := q.readFile.ReadAt(data, q.readOffset+prefixSize); err != nil {
		return nil, err
	}
	return data, nil
}

// commitDisk consumes the record at the read offset. The overflow file is
// truncated once every record in it has moved to memory.
func (q *HybridQueue) commitDisk(n int) {
	q.diskMu.Lock()
	defer q.diskMu.Unlock()
	q.readOffset += int64(prefixSize + n)
	if q.diskBytes.Add(-int64(prefixSize+n)) > 0 {
		return
	}
	if err := q.diskFile.Truncate(0); err != nil {
		return
	}
	q.readOffset = 0
}

// HasDiskData returns true if there's data on disk
func (q *HybridQueue) HasDiskData() bool {
	return q.diskBytes.Load() > 0
}

// GetDepth returns the total queue depth
func (q *HybridQueue) GetDepth() int64 {
	return q.depth.Load()
}

// Close stops the pump and writes queued records back to the overflow
// file. The file is removed when nothing is left.
func (q *HybridQueue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return errors.New("queue already closed")
	}
	close(q.closeCh)
	q.wg.Wait()

	q.diskMu.Lock()
	defer q.diskMu.Unlock()

	q.headMu.Lock()
	pending := q.head
	q.head = nil
	q.headMu.Unlock()
	for {
		select {
		case data := <-q.memQueue:
			pending = append(pending, data)
			continue
		default:
		}
		break
	}

	var errs []error
	if err := q.diskWriter.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush: %w", err))
	}
	if err := q.diskFile.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close write file: %w", err))
	}

	if len(pending) == 0 && q.diskBytes.Load() == 0 {
		q.readFile.Close()
		if err := os.Remove(q.path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to remove overflow file: %w", err))
		}
		return errors.Join(errs...)
	}

	if err := q.rewrite(pending); err != nil {
		errs = append(errs, err)
	}
	if err := q.readFile.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close read file: %w", err))
	}
	return errors.Join(errs...)
}

// rewrite replaces the overflow file with the requeued and memory records
// followed by the unread tail of the file. Memory always holds the older
// records.
func (q *HybridQueue) rewrite(pending [][]byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(q.path), q.name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create spool file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, data := range pending {
		if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to persist record: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to persist record: %w", err)
		}
	}
	tail := io.NewSectionReader(q.readFile, q.readOffset, q.diskBytes.Load())
	if _, err := io.Copy(w, tail); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist overflow tail: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush spool file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close spool file: %w", err)
	}
	if err := os.Rename(tmp.Name(), q.path); err != nil {
		return fmt.Errorf("failed to replace overflow file: %w", err)
	}
	return nil
}

// Stats returns queue statistics
func (q *HybridQueue) Stats() QueueStats {
	return QueueStats{
		Name:        q.name,
		Depth:       q.depth.Load(),
		MemoryItems: q.memCount.Load(),
		DiskBytes:   q.diskBytes.Load(),
	}
}

// QueueStats holds queue statistics
type QueueStats struct {
	Name        string `json:"name"`
	Depth       int64  `json:"depth"`
	MemoryItems int64  `json:"memory_items"`
	DiskBytes   int64  `json:"disk_bytes"`
}
