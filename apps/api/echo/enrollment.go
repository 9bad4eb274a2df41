package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chibale/darasa/core"
	"github.com/chibale/darasa/core/course"
	"github.com/chibale/darasa/core/enrollment"
	"github.com/chibale/darasa/core/user"
)

var accessTypeParam = "access_type"

type (
	AccessResponse struct {
		HasAccess   bool                          `json:"has_access"`
		Permissions *enrollment.AccessPermissions `json:"permissions,omitempty"`
		Progress    *enrollment.Progress          `json:"progress,omitempty"`
	}

	CourseEnrollmentsResponse struct {
		Enrollments []enrollment.Enrollment `json:"enrollments"`
		Stats       enrollment.Stats        `json:"stats"`
	}
)

type enrollmentApi struct {
	svc     *enrollment.Service
	usrSvc  *user.Service
	catalog course.Catalog
}

func registerEnrollmentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *enrollment.Service,
	usrSvc *user.Service,
	catalog course.Catalog,
) {
	api := enrollmentApi{svc: svc, usrSvc: usrSvc, catalog: catalog}

	cg := g.Group("/courses/:courseId", jwt)
	cg.POST("/enroll", api.enroll, learnerMiddleware())
	cg.GET("/access", api.checkAccess)
	cg.PUT("/progress", api.updateProgress, learnerMiddleware())
	cg.GET("/enrollments", api.queryCourseEnrollments, teacherMiddleware())

	eg := g.Group("/enrollments/:id", jwt)
	eg.PUT("/complete-payment", api.completePayment)
	eg.PUT("/fail-payment", api.failPayment, adminMiddleware())
	eg.PUT("/refund", api.refundPayment, adminMiddleware())

	g.GET("/my-enrollments", api.queryOwnEnrollments, jwt)
}

// Handlers

func (api *enrollmentApi) enroll(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data enrollment.NewEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	enr, err := api.svc.Enroll(ctx.Request().Context(), claims.Subject, ctx.Param("courseId"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *enrollmentApi) completePayment(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data enrollment.CompletePayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CompletePayment")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	id := ctx.Param("id")

	enr, err := api.svc.GetByID(reqCtx, id)
	if err != nil {
		return err
	}
	if !claims.IsAdmin && enr.StudentID != claims.Subject {
		return errHttpForbidden
	}

	enr, err = api.svc.CompletePayment(reqCtx, id, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) failPayment(ctx echo.Context) error {
	enr, err := api.svc.FailPayment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) refundPayment(ctx echo.Context) error {
	enr, err := api.svc.RefundPayment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) checkAccess(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	accessType := core.CleanString(ctx.QueryParam(accessTypeParam), true /* lower */)
	switch accessType {
	case enrollment.AccessNotes, enrollment.AccessLiveSessions:
	default:
		return core.NewValidationError(nil, core.FieldError{Field: accessTypeParam, Error: "invalid access type"})
	}

	ok, enr, err := api.svc.CheckAccess(ctx.Request().Context(), claims.Subject, ctx.Param("courseId"), accessType)
	if err != nil {
		return errors.Wrap(err, "checking access")
	}

	resp := AccessResponse{HasAccess: ok}
	if enr != nil {
		resp.Permissions = &enr.AccessPermissions
		resp.Progress = &enr.Progress
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *enrollmentApi) updateProgress(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data enrollment.UpdateProgress
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProgress")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	if data.IsEmpty() {
		return core.NewValidationError(errors.New("nothing to update"))
	}

	reqCtx := ctx.Request().Context()

	enr, err := api.svc.GetActive(reqCtx, claims.Subject, ctx.Param("courseId"))
	if err != nil {
		return err
	}
	enr, err = api.svc.UpdateProgress(reqCtx, enr.ID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) queryOwnEnrollments(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	page := new(Pagination)
	page.Bind(ctx)

	enrs, err := api.svc.ListForStudent(ctx.Request().Context(), claims.Subject, page.Pagination)
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	if enrs == nil {
		enrs = []enrollment.StudentEnrollment{}
	}
	return ctx.JSON(http.StatusOK, enrs)
}

// queryCourseEnrollments lists a course's enrollments with aggregate stats.
// Only the course's instructor or an admin may see them.
func (api *enrollmentApi) queryCourseEnrollments(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	reqCtx := ctx.Request().Context()
	courseID := ctx.Param("courseId")

	crs, err := api.catalog.GetCourse(reqCtx, courseID)
	if err != nil {
		return err
	}
	if !claims.IsAdmin && crs.InstructorID != claims.Subject {
		return errHttpForbidden
	}

	ordering := new(Ordering)
	ordering.Bind(ctx, "enrolled_at", "total_progress")
	page := new(Pagination)
	page.Bind(ctx)

	enrs, err := api.svc.QueryByCourse(reqCtx, courseID, ordering.Orderings, page.Pagination)
	if err != nil {
		return errors.Wrap(err, "listing course enrollments")
	}
	if enrs == nil {
		enrs = []enrollment.Enrollment{}
	}

	stats, err := api.svc.CourseStats(reqCtx, courseID)
	if err != nil {
		return errors.Wrap(err, "aggregating course stats")
	}

	return ctx.JSON(http.StatusOK, CourseEnrollmentsResponse{Enrollments: enrs, Stats: stats})
}
