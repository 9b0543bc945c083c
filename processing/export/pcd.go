package export

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"scanlight/internal/models"
)

// WritePCD writes mesh as an ASCII point cloud (PCD v0.7). Each point
// carries its projector pixel in the u and v fields.
func WritePCD(w io.Writer, mesh *models.Mesh) error {
	bw := bufio.NewWriter(w)
	n := mesh.Len()
	_, err := fmt.Fprintf(bw, "VERSION .7\n"+
		"FIELDS x y z u v\n"+
		"SIZE 4 4 4 4 4\n"+
		"TYPE F F F I I\n"+
		"COUNT 1 1 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA ascii\n", n, n)
	if err != nil {
		return errors.Wrap(err, "write pcd header")
	}
	for i := 0; i < n; i++ {
		v := mesh.Vertices[i]
		if _, err := fmt.Fprintf(bw, "%f %f %f %d %d\n",
			v.Position.X, v.Position.Y, v.Position.Z, v.TexCoord.X, v.TexCoord.Y); err != nil {
			return errors.Wrap(err, "write pcd data")
		}
	}
	return errors.Wrap(bw.Flush(), "write pcd")
}

// SavePCD writes mesh to path.
func SavePCD(path string, mesh *models.Mesh) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create pcd")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return WritePCD(f, mesh)
}
