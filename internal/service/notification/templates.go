package notification

import "strings"

type template struct {
	subject string
	body    string
}

// Placeholders use {{name}} tokens. Rendering is literal replacement; a token
// with no matching variable stays in the output verbatim.
var templates = map[EventKind]template{
	KindBooking: {
		subject: "Appointment request received",
		body: "Hi {{patientName}},\n\n" +
			"Your appointment request with Dr. {{doctorName}} has been received and is awaiting confirmation.\n\n" +
			"Date: {{appointmentDate}}\nTime: {{appointmentTime}}\nType: {{appointmentType}}\n\n" +
			"You will be notified once the doctor responds.\n",
	},
	KindConfirmation: {
		subject: "Appointment update",
		body: "Hi {{patientName}},\n\n" +
			"Your appointment with Dr. {{doctorName}} has been updated.\n\n" +
			"Date: {{appointmentDate}}\nTime: {{appointmentTime}}\nType: {{appointmentType}}\n",
	},
	KindReminder: {
		subject: "Upcoming appointment reminder",
		body: "Hi {{patientName}},\n\n" +
			"This is a reminder of your upcoming appointment with Dr. {{doctorName}}.\n\n" +
			"Date: {{appointmentDate}}\nTime: {{appointmentTime}}\nType: {{appointmentType}}\n",
	},
	KindCancellation: {
		subject: "Appointment canceled",
		body: "Hi {{patientName}},\n\n" +
			"The appointment with Dr. {{doctorName}} scheduled for {{appointmentDate}} at {{appointmentTime}} has been canceled.\n",
	},
	KindReschedule: {
		subject: "Appointment rescheduled",
		body: "Hi {{patientName}},\n\n" +
			"Your appointment with Dr. {{doctorName}} has been rescheduled.\n\n" +
			"Previous: {{oldAppointmentDate}} at {{oldAppointmentTime}}\n" +
			"New: {{appointmentDate}} at {{appointmentTime}}\nType: {{appointmentType}}\n\n" +
			"The new time is pending confirmation.\n",
	},
}

func render(s string, vars map[string]string) string {
	for name, value := range vars {
		s = strings.ReplaceAll(s, "{{"+name+"}}", value)
	}
	return s
}
