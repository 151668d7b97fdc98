//go:build windows

package automation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
)

// swSaveAsOptionsSilent suppresses the save dialog during SaveAs calls.
const swSaveAsOptionsSilent = 1

// saveAs3Capability records whether the richer SaveAs3 entry point is
// available. Probed once per session, on the first opened document, and
// cached so a genuine export failure is never mistaken for a missing
// entry point.
type saveAs3Capability int

const (
	saveAs3Unknown saveAs3Capability = iota
	saveAs3Available
	saveAs3Missing
)

type solidWorks struct {
	logger  *slog.Logger
	visible bool

	app     *ole.IDispatch
	saveAs3 saveAs3Capability
}

// NewSolidWorks returns a Service backed by the SolidWorks COM interface.
// The service is bound to the OS thread that calls Connect; COM is
// initialized in single-threaded apartment mode.
func NewSolidWorks(logger *slog.Logger, visible bool) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &solidWorks{logger: logger, visible: visible}
}

func (s *solidWorks) Connect(ctx context.Context) error {
	if s.app != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := ole.CoInitialize(0); err != nil {
		return fmt.Errorf("%w: COM initialization failed: %v", ErrServiceUnavailable, err)
	}

	unknown, err := oleutil.CreateObject("SldWorks.Application")
	if err != nil {
		ole.CoUninitialize()
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	app, err := unknown.QueryInterface(ole.IID_IDispatch)
	unknown.Release()
	if err != nil {
		ole.CoUninitialize()
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	if _, err := oleutil.PutProperty(app, "Visible", s.visible); err != nil {
		s.logger.Warn("could not set application visibility", "error", err)
	}

	s.app = app
	s.saveAs3 = saveAs3Unknown
	s.logger.Info("connected to SolidWorks", "visible", s.visible)
	if rev, err := oleutil.GetProperty(app, "RevisionNumber"); err == nil {
		s.logger.Debug("SolidWorks revision", "revision", rev.ToString())
	}
	return nil
}

func (s *solidWorks) Disconnect() {
	if s.app == nil {
		return
	}
	s.app.Release()
	s.app = nil
	ole.CoUninitialize()
	s.logger.Info("disconnected from SolidWorks")
}

func (s *solidWorks) Open(path string, docType int) (Document, error) {
	if s.app == nil {
		return nil, ErrServiceUnavailable
	}
	result, err := oleutil.CallMethod(s.app, "OpenDoc", path, docType)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	disp := result.ToIDispatch()
	if disp == nil {
		return nil, nil
	}
	return &swDocument{svc: s, disp: disp}, nil
}

func (s *solidWorks) Close(title string) error {
	if s.app == nil {
		return ErrServiceUnavailable
	}
	if _, err := oleutil.CallMethod(s.app, "CloseDoc", title); err != nil {
		return fmt.Errorf("close %q: %w", title, err)
	}
	return nil
}

type swDocument struct {
	svc  *solidWorks
	disp *ole.IDispatch
}

func (d *swDocument) Title() string {
	title, err := oleutil.GetProperty(d.disp, "GetTitle")
	if err != nil {
		return ""
	}
	return title.ToString()
}

func (d *swDocument) Export(path string) (ExportOutcome, error) {
	ext, err := oleutil.GetProperty(d.disp, "Extension")
	if err != nil {
		return ExportOutcome{}, fmt.Errorf("resolve document extension: %w", err)
	}
	extDisp := ext.ToIDispatch()
	if extDisp != nil {
		defer extDisp.Release()
	}

	if d.svc.saveAs3 == saveAs3Unknown {
		d.svc.saveAs3 = saveAs3Missing
		if extDisp != nil {
			if _, err := extDisp.GetIDsOfName([]string{"SaveAs3"}); err == nil {
				d.svc.saveAs3 = saveAs3Available
			}
		}
		d.svc.logger.Debug("export capability probed", "save_as3", d.svc.saveAs3 == saveAs3Available)
	}

	if d.svc.saveAs3 == saveAs3Available && extDisp != nil {
		// Error and warning codes are ByRef output arguments in the COM
		// signature; the dispatch call here does not round-trip them, so
		// they stay zero and only the boolean result is classified.
		result, err := oleutil.CallMethod(extDisp, "SaveAs3", path, 0, swSaveAsOptionsSilent, nil, nil, 0, 0)
		if err != nil {
			return ExportOutcome{}, fmt.Errorf("SaveAs3 %s: %w", path, err)
		}
		return ExportOutcome{Success: result.Value() == true}, nil
	}

	result, err := oleutil.CallMethod(d.disp, "SaveAs", path)
	if err != nil {
		return ExportOutcome{}, fmt.Errorf("SaveAs %s: %w", path, err)
	}
	return ExportOutcome{Success: result.Value() == true}, nil
}
