package yearbook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/shared/model"
	"memoria/internal/testutil"
)

type testResponse struct {
	Success bool   `json:"success"`
	Data    Page   `json:"data"`
	Error   string `json:"error"`
}

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	store := testutil.NewStore(t)
	testutil.SeedYear(t, store, "sy-1", true)
	testutil.SeedYear(t, store, "sy-0", false)

	college := func(name, section string) map[string]any {
		raw := testutil.Student(name, "college")
		raw["yearLevel"] = "4"
		raw["courseProgram"] = "BSIT"
		raw["blockSection"] = section
		raw["quote"] = "Carpe diem"
		return raw
	}
	testutil.SeedProfile(t, store, "prf-1", "sy-1", model.ProfileTypeStudent, model.ProfileStatusApproved, college("zeus ramos", "A"))
	testutil.SeedProfile(t, store, "prf-2", "sy-1", model.ProfileTypeStudent, model.ProfileStatusApproved, college("Ana Reyes", "A"))
	testutil.SeedProfile(t, store, "prf-3", "sy-1", model.ProfileTypeStudent, model.ProfileStatusPending, college("Bea Cruz", "A"))
	testutil.SeedProfile(t, store, "prf-4", "sy-1", model.ProfileTypeStudent, model.ProfileStatusApproved, college("Carlo Diaz", "B"))
	testutil.SeedProfile(t, store, "prf-5", "sy-1", model.ProfileTypeAdvisory, model.ProfileStatusApproved, map[string]any{
		"fullName": "Ms. Lopez", "department": "college", "yearLevel": "4", "courseProgram": "BSIT", "blockSection": "A",
	})
	testutil.SeedProfile(t, store, "prf-6", "sy-1", model.ProfileTypeFaculty, model.ProfileStatusApproved, map[string]any{
		"fullName": "Jose Rizal", "position": "Dean", "departmentAssigned": "CCS",
	})
	testutil.SeedProfile(t, store, "prf-7", "sy-0", model.ProfileTypeStudent, model.ProfileStatusApproved, college("Old Year", "A"))

	mux := http.NewServeMux()
	NewHandler(store).RegisterRoutes(mux)
	return mux
}

func get(t *testing.T, mux http.Handler, query string) (int, testResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/yearbook"+query, nil))
	var resp testResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func names(people []Person) []string {
	out := make([]string, 0, len(people))
	for _, p := range people {
		out = append(out, p.Name)
	}
	return out
}

func TestYearbook_List(t *testing.T) {
	mux := newTestMux(t)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"部门内按姓名排序", "?department=college", []string{"Ana Reyes", "Carlo Diaz", "Ms. Lopez", "zeus ramos"}},
		{"按班级筛选", "?department=college&yearLevel=4&courseProgram=bsit&blockSection=A", []string{"Ana Reyes", "Ms. Lopez", "zeus ramos"}},
		{"显式 approved", "?department=college&blockSection=B&status=approved", []string{"Carlo Diaz"}},
		{"教职工", "?department=faculty_staff", []string{"Jose Rizal"}},
		{"指定学年", "?department=college&schoolYearId=sy-0", []string{"Old Year"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := get(t, mux, tt.query)
			require.Equal(t, http.StatusOK, code, resp.Error)
			assert.Equal(t, tt.want, names(resp.Data.People))
			assert.Equal(t, len(tt.want), resp.Data.Total)
		})
	}

	_, resp := get(t, mux, "?department=faculty_staff")
	require.Len(t, resp.Data.People, 1)
	assert.Equal(t, "Dean", resp.Data.People[0].Role)
}

func TestYearbook_BadRequest(t *testing.T) {
	mux := newTestMux(t)

	code, _ := get(t, mux, "?department=college&status=pending")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = get(t, mux, "?department=nursery")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestYearbook_NoActiveYear(t *testing.T) {
	store := testutil.NewStore(t)
	mux := http.NewServeMux()
	NewHandler(store).RegisterRoutes(mux)

	code, resp := get(t, mux, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "No active school year", resp.Error)
}

func TestToPerson(t *testing.T) {
	data, err := model.DecodeProfileData(model.ProfileTypeAlumni, map[string]any{
		"fullName": "Andres", "graduationYear": "2010", "courseProgram": "BSN", "motto": "Onward",
	})
	require.NoError(t, err)
	p := &model.Profile{ID: "prf-1", Type: model.ProfileTypeAlumni, Data: data}
	require.NoError(t, p.Normalize())

	person := ToPerson(p)
	assert.Equal(t, "Andres", person.Name)
	assert.Equal(t, "Alumni, Batch 2010", person.Role)
	assert.Equal(t, "Onward", person.Quote)
	assert.Equal(t, "BSN", person.CourseProgram)
}
