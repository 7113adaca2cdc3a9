// Package flightexport ships embedding rows to an Arrow Flight endpoint.
// Rows are batched into a single record whose schema is a token position
// column plus a fixed-size float32 list column of width dim.
package flightexport

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/skarn-ml/skarn/internal/logger"
	"github.com/skarn-ml/skarn/internal/status"
)

const defaultTimeout = 30 * time.Second

// Client wraps an Arrow Flight connection for embedding export.
type Client struct {
	addr    string
	dim     int
	timeout time.Duration
	fc      flight.Client
	log     *logger.Logger
}

// NewClient prepares a client for the given Flight address. dim is the
// embedding width every exported row must have. No connection is made
// until Connect.
func NewClient(addr string, dim int) (*Client, error) {
	if addr == "" {
		return nil, status.PathNotValid("flight address is empty")
	}
	if dim <= 0 {
		return nil, status.InternalError("flight export: embedding dim %d must be positive", dim)
	}
	return &Client{
		addr:    addr,
		dim:     dim,
		timeout: defaultTimeout,
		log:     logger.Log.With("flightexport"),
	}, nil
}

// Connect dials the Flight endpoint.
func (c *Client) Connect() error {
	fc, err := flight.NewClientWithMiddleware(c.addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connect flight endpoint %s: %w", c.addr, err)
	}
	c.fc = fc
	return nil
}

func (c *Client) Close() error {
	if c.fc == nil {
		return nil
	}
	err := c.fc.Close()
	c.fc = nil
	return err
}

// Schema returns the export schema: (position int32, embedding
// fixed_size_list<float32>[dim]).
func (c *Client) Schema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "position", Type: arrow.PrimitiveTypes.Int32},
		{Name: "embedding", Type: arrow.FixedSizeListOf(int32(c.dim), arrow.PrimitiveTypes.Float32)},
	}, nil)
}

// buildRecord packs the rows into one Arrow record. Every row must be
// exactly dim wide.
func (c *Client) buildRecord(rows [][]float32) (arrow.Record, error) {
	if len(rows) == 0 {
		return nil, status.InternalError("flight export: no rows to export")
	}
	for i, row := range rows {
		if len(row) != c.dim {
			return nil, status.InternalError("flight export: row %d has %d floats, schema width is %d", i, len(row), c.dim)
		}
	}

	b := array.NewRecordBuilder(memory.DefaultAllocator, c.Schema())
	defer b.Release()

	posBuilder := b.Field(0).(*array.Int32Builder)
	listBuilder := b.Field(1).(*array.FixedSizeListBuilder)
	valBuilder := listBuilder.ValueBuilder().(*array.Float32Builder)

	for i, row := range rows {
		posBuilder.Append(int32(i))
		listBuilder.Append(true)
		valBuilder.AppendValues(row, nil)
	}

	return b.NewRecord(), nil
}

// Export writes the rows to the endpoint as one DoPut stream under the
// "embeddings" descriptor path.
func (c *Client) Export(ctx context.Context, rows [][]float32) error {
	if c.fc == nil {
		return status.InternalError("flight export: not connected")
	}

	rec, err := c.buildRecord(rows)
	if err != nil {
		return err
	}
	defer rec.Release()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream, err := c.fc.DoPut(ctx)
	if err != nil {
		return fmt.Errorf("open DoPut stream to %s: %w", c.addr, err)
	}

	wr := flight.NewRecordWriter(stream, ipc.WithSchema(c.Schema()))
	wr.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{"embeddings"},
	})
	if err := wr.Write(rec); err != nil {
		_ = wr.Close()
		return fmt.Errorf("write record to %s: %w", c.addr, err)
	}
	if err := wr.Close(); err != nil {
		return fmt.Errorf("close record writer: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("close DoPut stream: %w", err)
	}

	// Drain server acknowledgements.
	for {
		if _, err := stream.Recv(); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("DoPut acknowledgement: %w", err)
		}
	}

	c.log.Info("exported embeddings", "rows", len(rows), "dim", c.dim, "addr", c.addr)
	return nil
}
