package cli

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/emerl/pkg/artifact"
	"github.com/matzehuels/emerl/pkg/volume"
)

// rawWidths maps raw voxel dtypes to their byte width.
var rawWidths = map[string]int{"uint8": 1, "uint16": 2, "uint32": 4, "uint64": 8}

// readRaw reads a C-order little-endian voxel array of the given shape.
func readRaw(r io.Reader, shape volume.Shape, dtype string) (*volume.Dense, error) {
	width, ok := rawWidths[dtype]
	if !ok {
		return nil, fmt.Errorf("unknown raw dtype %q (want uint8, uint16, uint32 or uint64)", dtype)
	}
	v, err := volume.NewDense(shape, nil)
	if err != nil {
		return nil, err
	}
	data := v.Data()
	buf := make([]byte, width)
	br := bufio.NewReader(r)
	for i := range data {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("raw volume %s: voxel %d: %w", shape, i, err)
		}
		switch width {
		case 1:
			data[i] = uint64(buf[0])
		case 2:
			data[i] = uint64(binary.LittleEndian.Uint16(buf))
		case 4:
			data[i] = uint64(binary.LittleEndian.Uint32(buf))
		default:
			data[i] = binary.LittleEndian.Uint64(buf)
		}
	}
	if _, err := br.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("raw volume is larger than %s %s", shape, dtype)
	}
	return v, nil
}

// volumeCommand creates the volume command group.
func (c *CLI) volumeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "volume",
		Short: "Import and inspect segmentation and mask volumes",
	}
	cmd.AddCommand(c.volumeImportCommand())
	cmd.AddCommand(c.volumeInfoCommand())
	return cmd
}

func (c *CLI) volumeImportCommand() *cobra.Command {
	var (
		shape []int
		dtype string
		mask  bool
		key   string
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a raw little-endian voxel array",
		Long: `Import a raw C-order (z, y, x) little-endian voxel array as the
segmentation volume, or as the mask volume with --mask.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(shape) != 3 {
				return fmt.Errorf("--shape takes 3 values (z,y,x), got %d", len(shape))
			}
			opts, err := c.options()
			if err != nil {
				return err
			}
			if err := opts.ValidateAndSetDefaults(); err != nil {
				return err
			}
			if key == "" {
				key = opts.Keys.SegVolume
				if mask {
					key = opts.Keys.MaskVolume
				}
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			v, err := readRaw(f, volume.Shape{shape[0], shape[1], shape[2]}, dtype)
			if err != nil {
				return err
			}

			return c.withStore(cmd, func(s artifact.Store) error {
				if err := volume.Put(cmd.Context(), s, key, v); err != nil {
					return err
				}
				printSuccess("Imported %s volume as %s", v.Shape(), key)
				return nil
			})
		},
	}
	cmd.Flags().IntSliceVar(&shape, "shape", nil, "volume shape (z,y,x)")
	cmd.Flags().StringVar(&dtype, "dtype", "uint32", "raw voxel dtype: uint8, uint16, uint32, uint64")
	cmd.Flags().BoolVar(&mask, "mask", false, "import as the mask volume")
	cmd.Flags().StringVar(&key, "key", "", "store key (default: the configured volume key)")
	_ = cmd.MarkFlagRequired("shape")
	return cmd
}

func (c *CLI) volumeInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info [KEY]",
		Short: "Summarize a stored volume",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.options()
			if err != nil {
				return err
			}
			if err := opts.ValidateAndSetDefaults(); err != nil {
				return err
			}
			key := opts.Keys.SegVolume
			if len(args) == 1 {
				key = args[0]
			}
			return c.withStore(cmd, func(s artifact.Store) error {
				v, err := volume.Get(cmd.Context(), s, key)
				if err != nil {
					return err
				}
				segments := make(map[uint64]struct{})
				for _, id := range v.Data() {
					if id != 0 {
						segments[id] = struct{}{}
					}
				}
				fmt.Println(StyleTitle.Render("Volume " + key))
				printKeyValue("shape", v.Shape().String())
				printKeyValue("voxels", strconv.Itoa(v.Shape().Len()))
				printKeyValue("segments", strconv.Itoa(len(segments)))
				return nil
			})
		},
	}
}
